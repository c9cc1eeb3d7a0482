package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/songsmith/backend/internal/config"
	"github.com/songsmith/backend/internal/errs"
	"github.com/songsmith/backend/internal/models"
	"github.com/songsmith/backend/internal/songapi"
)

const songEndpoint = "songs.create"

// SongLedger is the slice of the ledger the generation flow needs.
type SongLedger interface {
	Debit(ctx context.Context, userID int, amount int64, description, relatedRef string) (*models.CreditTransaction, error)
	Credit(ctx context.Context, userID int, amount int64, kind models.TransactionKind, description, relatedRef string) (*models.CreditTransaction, error)
	HasRefundFor(ctx context.Context, userID int, relatedRef string) (bool, error)
}

// SongRenderer is the external rendering pipeline.
type SongRenderer interface {
	Generate(ctx context.Context, req songapi.GenerateRequest) (*songapi.GenerateResponse, error)
}

// SongService runs the paid generation flow: quota gate, credit debit,
// bounded call to the render service, and a refund on any failure of the
// paid action. No path leaves a debit standing without either a finished
// song or a refund.
type SongService struct {
	db       *sql.DB
	ledger   SongLedger
	quota    *QuotaService
	renderer SongRenderer
	cfg      *config.SongConfig
	quotaCfg *config.QuotaConfig
	validate *ValidationHelper
}

func NewSongService(db *sql.DB, ledger SongLedger, quota *QuotaService, renderer SongRenderer, cfg *config.SongConfig, quotaCfg *config.QuotaConfig) *SongService {
	return &SongService{
		db:       db,
		ledger:   ledger,
		quota:    quota,
		renderer: renderer,
		cfg:      cfg,
		quotaCfg: quotaCfg,
		validate: NewValidationHelper(),
	}
}

// CreateSong generates a song from a text concept
// @Summary Generate a song
// @Description Turn a short text concept into a generated song. Anonymous callers use the free tier (IP quota); authenticated callers are debited credits.
// @Tags songs
// @Accept json
// @Produce json
// @Param request body object{concept=string} true "Song concept"
// @Success 201 {object} models.Song
// @Failure 400 {object} ErrorResponse
// @Failure 402 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /songs [post]
func (s *SongService) CreateSong(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Concept string `json:"concept" validate:"required,min=3,max=500"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validate.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	userID, authed := authedUserID(r)

	// Quota gate. Anonymous callers are limited by IP and pointed at
	// login on denial; authenticated callers get the larger per-user
	// window plus a retry hint.
	identity, policy := s.identityFor(r, userID, authed)
	decision := s.quota.CheckQuota(r.Context(), identity, songEndpoint, policy)
	if !decision.Allowed {
		w.Header().Set("Content-Type", "application/json")
		if decision.RetryAfter > 0 {
			w.Header().Set("Retry-After", retryAfterSeconds(decision.RetryAfter))
		}
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error":         "Rate limit exceeded",
			"requiresLogin": decision.RequiresLogin,
		})
		return
	}

	songID := "SONG-" + uuid.NewString()

	// Authenticated callers pay per song; the free tier is quota-only.
	debited := false
	if authed {
		if _, err := s.ledger.Debit(r.Context(), userID, s.cfg.CreditCost, "Song generation", songID); err != nil {
			if errs.Is(err, errs.KindInsufficientFunds) {
				SendErrorResponse(w, "Insufficient credits", http.StatusPaymentRequired, nil)
				return
			}
			log.Printf("[SONG] Debit failed for user %d: %v", userID, err)
			SendErrorResponse(w, "Failed to start generation", http.StatusInternalServerError, nil)
			return
		}
		debited = true
	}

	s.quota.RecordUsage(r.Context(), identity, songEndpoint)

	if err := s.storeSong(r.Context(), songID, userID, req.Concept); err != nil {
		log.Printf("[SONG] Failed to store song %s: %v", songID, err)
		s.refund(userID, songID, debited)
		SendErrorResponse(w, "Failed to start generation", http.StatusInternalServerError, nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RenderTimeout)
	defer cancel()

	result, err := s.renderer.Generate(ctx, songapi.GenerateRequest{SongID: songID, Concept: req.Concept})
	if err != nil {
		log.Printf("[SONG] Generation failed for %s: %v", songID, err)
		s.markSongFailed(songID)
		s.refund(userID, songID, debited)
		SendErrorResponse(w, "Song generation failed", http.StatusBadGateway, nil)
		return
	}

	if err := s.markSongComplete(songID, result.TrackURL); err != nil {
		// Track exists; losing the status update is recoverable and not
		// worth refunding a delivered song over.
		log.Printf("[SONG] Failed to mark song %s complete: %v", songID, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.Song{
		ID:        songID,
		UserID:    userID,
		Concept:   req.Concept,
		Status:    "completed",
		TrackURL:  result.TrackURL,
		CreatedAt: time.Now(),
	})
}

func (s *SongService) identityFor(r *http.Request, userID int, authed bool) (string, config.QuotaPolicy) {
	if authed {
		return "user:" + strconv.Itoa(userID), s.quotaCfg.Authenticated
	}

	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return "ip:" + ip, s.quotaCfg.Anonymous
}

// refund returns the song cost after a failed generation. The song id tags
// the refund so duplicate refund attempts for the same failure can be
// detected; the check-then-credit here is best effort and an operator can
// rely on the related_ref to audit.
func (s *SongService) refund(userID int, songID string, debited bool) {
	if !debited {
		return
	}

	// The request context may already be cancelled; the refund must still
	// go through.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if done, err := s.ledger.HasRefundFor(ctx, userID, songID); err == nil && done {
		return
	}

	if _, err := s.ledger.Credit(ctx, userID, s.cfg.CreditCost, models.KindRefund, "Refund for failed song generation", songID); err != nil {
		log.Printf("[SONG] Refund failed for user %d, song %s: %v", userID, songID, err)
	}
}

func (s *SongService) storeSong(ctx context.Context, songID string, userID int, concept string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO songs (id, user_id, concept, status, created_at)
		VALUES ($1, $2, $3, 'rendering', $4)`, songID, nullableUserID(userID), concept, time.Now())
	return err
}

func (s *SongService) markSongComplete(songID, trackURL string) error {
	_, err := s.db.Exec(`UPDATE songs SET status = 'completed', track_url = $1 WHERE id = $2`, trackURL, songID)
	return err
}

func (s *SongService) markSongFailed(songID string) {
	if _, err := s.db.Exec(`UPDATE songs SET status = 'failed' WHERE id = $1`, songID); err != nil {
		log.Printf("[SONG] Failed to mark song %s failed: %v", songID, err)
	}
}

// GetSong fetches one song record
// @Summary Get song
// @Description Fetch a generated song by id
// @Tags songs
// @Produce json
// @Param songId path string true "Song ID"
// @Success 200 {object} models.Song
// @Failure 404 {object} ErrorResponse
// @Router /songs/{songId} [get]
func (s *SongService) GetSong(w http.ResponseWriter, r *http.Request) {
	songID := chi.URLParam(r, "songId")

	var song models.Song
	var userID sql.NullInt64
	var trackURL sql.NullString
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, user_id, concept, status, track_url, created_at
		FROM songs WHERE id = $1`, songID).Scan(
		&song.ID, &userID, &song.Concept, &song.Status, &trackURL, &song.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Song not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to fetch song", http.StatusInternalServerError, nil)
		return
	}
	song.UserID = int(userID.Int64)
	song.TrackURL = trackURL.String

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(song)
}

func nullableUserID(userID int) any {
	if userID == 0 {
		return nil
	}
	return userID
}

// retryAfterSeconds renders a duration as whole seconds, rounded up, for the
// Retry-After header.
func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}
