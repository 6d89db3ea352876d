package users

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/princekumarofficial/winsome/internal/storage/memory"
	"github.com/princekumarofficial/winsome/internal/types/users"
	"github.com/princekumarofficial/winsome/internal/utils/password"
	"github.com/princekumarofficial/winsome/internal/utils/response"
)

// Registrar creates accounts.
type Registrar interface {
	Register(username, passwordHash string, tags []string) error
}

var validate = validator.New()

// Register handles user registration
// @Summary Register a new user
// @Description Create an account with up to five interest tags
// @Tags users
// @Accept json
// @Produce json
// @Param user body users.RegisterRequest true "User registration details"
// @Success 200 {object} users.RegisterResponse "Result code, 0 on success"
// @Router /register [post]
func Register(store Registrar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req users.RegisterRequest

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		// Limits apply to distinct tags.
		req.Tags = memory.NormalizeTags(req.Tags)

		if err := validate.Struct(req); err != nil {
			var ve validator.ValidationErrors
			if !errors.As(err, &ve) {
				response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
				return
			}
			code := codeFor(ve)
			response.WriteJSON(w, http.StatusOK, users.RegisterResponse{
				Code:    code,
				Message: response.ValidationError(ve).Error,
			})
			return
		}

		hashedPassword, err := password.HashPassword(req.Password)
		if err != nil {
			slog.Error("failed to hash password", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusOK, users.RegisterResponse{Code: users.CodeServerError})
			return
		}

		err = store.Register(req.Username, hashedPassword, req.Tags)
		switch {
		case err == nil:
		case errors.Is(err, memory.ErrUserExists):
			response.WriteJSON(w, http.StatusOK, users.RegisterResponse{
				Code:    users.CodeUsernameTaken,
				Message: err.Error(),
			})
			return
		case errors.Is(err, memory.ErrInvalidUsername):
			response.WriteJSON(w, http.StatusOK, users.RegisterResponse{
				Code:    users.CodeInvalidUsername,
				Message: err.Error(),
			})
			return
		default:
			slog.Error("failed to register user", slog.String("username", req.Username), slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusOK, users.RegisterResponse{Code: users.CodeServerError})
			return
		}

		slog.Info("user registered", slog.String("username", req.Username), slog.Int("tags", len(req.Tags)))
		response.WriteJSON(w, http.StatusOK, users.RegisterResponse{Code: users.CodeOK})
	}
}

// codeFor picks the result code for the first failing rule, checking the
// password before the tags and the tags before the username.
func codeFor(errs validator.ValidationErrors) int {
	code := users.CodeServerError
	rank := len(order)
	for _, fe := range errs {
		c := classify(fe)
		for i, want := range order {
			if c == want && i < rank {
				code, rank = c, i
			}
		}
	}
	return code
}

var order = []int{
	users.CodeEmptyPassword,
	users.CodeNoTags,
	users.CodeTooManyTags,
	users.CodeInvalidUsername,
}

func classify(fe validator.FieldError) int {
	switch fe.StructField() {
	case "Password":
		return users.CodeEmptyPassword
	case "Username":
		return users.CodeInvalidUsername
	case "Tags":
		if fe.Tag() == "max" {
			return users.CodeTooManyTags
		}
		return users.CodeNoTags
	}
	// dive errors on individual tags surface as Tags[i].
	if fe.Tag() == "required" {
		return users.CodeNoTags
	}
	return users.CodeServerError
}
