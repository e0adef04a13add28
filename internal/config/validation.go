package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"reflect"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/spiffe/go-spiffe/v2/spiffeid"

	"github.com/sufield/mvrp/internal/adapters/secondary/trust"
	mvrperrors "github.com/sufield/mvrp/internal/core/errors"
)

// Validator wraps go-playground/validator with the MVRP custom tags.
type Validator struct {
	validate *validator.Validate
}

// NewValidator registers file_exists, hostport and spiffe_id plus the
// cross-field rules of ServerConfig and ClientConfig.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(mapstructureName)

	_ = v.RegisterValidation("file_exists", validateFileExists)
	_ = v.RegisterValidation("hostport", validateHostPort)
	_ = v.RegisterValidation("spiffe_id", validateSPIFFEID)

	v.RegisterStructValidation(serverRules, ServerConfig{})

	return &Validator{validate: v}
}

// Validate checks s and returns a CONFIG_ERROR listing every failed field.
func (v *Validator) Validate(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return mvrperrors.Wrapf(mvrperrors.ErrConfig, err, "validate configuration")
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, &mvrperrors.ValidationError{
			Field:   fe.Namespace(),
			Value:   fe.Value(),
			Message: messageFor(fe),
		})
	}
	return mvrperrors.NewDomainError(mvrperrors.ErrConfig, mvrperrors.NewConfigValidationError(errs...))
}

func mapstructureName(f reflect.StructField) string {
	name := f.Tag.Get("mapstructure")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

func validateFileExists(fl validator.FieldLevel) bool {
	path := fl.Field().String()
	if path == "" {
		return true
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func validateHostPort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	if addr == "" {
		return true
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 0 && n <= 65535
}

func validateSPIFFEID(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true
	}
	_, err := spiffeid.FromString(raw)
	return err == nil
}

// serverRules holds the checks that span more than one ServerConfig field.
func serverRules(sl validator.StructLevel) {
	cfg, ok := sl.Current().Interface().(ServerConfig)
	if !ok {
		return
	}
	require := cfg.ClientAuth == trust.ClientAuthRequire.String()
	if cfg.PeerID != "" && !require {
		sl.ReportError(cfg.PeerID, "peer_id", "PeerID", "peer_id_needs_require", "")
	}
	if require && cfg.ClientCAFile == "" && cfg.CAFile == "" {
		sl.ReportError(cfg.ClientCAFile, "client_ca_file", "ClientCAFile", "client_ca_required", "")
	}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "file_exists":
		return "file must exist and be a regular file"
	case "hostport":
		return "must be a host:port address"
	case "spiffe_id":
		return "must be a valid SPIFFE ID (e.g., spiffe://example.org/service)"
	case "peer_id_needs_require":
		return "peer_id needs client_auth require"
	case "client_ca_required":
		return "client_auth require needs client_ca_file or ca_file"
	default:
		return fmt.Sprintf("validation failed for tag '%s'", fe.Tag())
	}
}
