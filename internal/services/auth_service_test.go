package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/songsmith/backend/internal/models"
)

func setAuthTestConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
}

func TestAuthService_Register(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setAuthTestConfig()

	ledger := NewLedgerService(db)
	service := NewAuthService(db, nil, ledger, 30)

	t.Run("registration creates the account and credits the bonus", func(t *testing.T) {
		req := RegisterRequest{
			Email:       "test@example.com",
			Password:    "password123",
			DisplayName: "Jo",
		}

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WithArgs(req.Email, sqlmock.AnyArg(), req.DisplayName).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(1).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		// Signup bonus lands through the ledger as a normal transaction.
		mock.ExpectBegin()
		mock.ExpectQuery(lockAccountQuery).
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "version", "updated_at"}).
				AddRow(1, 0, 1, time.Now()))
		mock.ExpectQuery(insertEntryQuery).
			WithArgs(1, int64(30), int64(30), "purchase", "Signup bonus", "", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectExec(updateBalanceQuery).
			WithArgs(int64(30), sqlmock.AnyArg(), 1, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, req.Email, response.User.Email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate email", func(t *testing.T) {
		req := RegisterRequest{
			Email:       "taken@example.com",
			Password:    "password123",
			DisplayName: "Jo",
		}

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WillReturnError(assert.AnError)
		mock.ExpectRollback()

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestAuthService_Login(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setAuthTestConfig()

	service := NewAuthService(db, nil, NewLedgerService(db), 30)

	t.Run("successful login", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, email, display_name, password FROM users").
			WithArgs("test@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "password"}).
				AddRow(1, "test@example.com", "Jo", hashedPassword))

		req := LoginRequest{
			Email:    "test@example.com",
			Password: "password123",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
	})

	t.Run("wrong password", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, email, display_name, password FROM users").
			WithArgs("test@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "password"}).
				AddRow(1, "test@example.com", "Jo", hashedPassword))

		req := LoginRequest{
			Email:    "test@example.com",
			Password: "not-the-password",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("user not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, display_name, password FROM users").
			WithArgs("nonexistent@example.com").
			WillReturnError(sql.ErrNoRows)

		req := LoginRequest{
			Email:    "nonexistent@example.com",
			Password: "password123",
		}

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPasswordHashing(t *testing.T) {
	setAuthTestConfig()

	password := "testpassword"

	hashed, err := hashPassword(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hashed)

	assert.True(t, verifyPassword(password, hashed))
	assert.False(t, verifyPassword("wrongpassword", hashed))
}

func TestGenerateJWT(t *testing.T) {
	setAuthTestConfig()

	token, err := generateJWT(123)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestPackageService(t *testing.T) {
	ps := NewPackageService()

	t.Run("known package", func(t *testing.T) {
		pkg := ps.Find("starter")
		assert.NotNil(t, pkg)
		assert.Equal(t, int64(100), pkg.Credits)
	})

	t.Run("unknown package", func(t *testing.T) {
		assert.Nil(t, ps.Find("platinum"))
	})

	t.Run("list endpoint", func(t *testing.T) {
		w := httptest.NewRecorder()
		ps.GetAllPackages(w, httptest.NewRequest("GET", "/packages", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp []models.CreditPackage
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp, 3)
	})
}
