package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"tourplan/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validationDetail flattens validator errors into "Field: rule" pairs.
func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fe.Namespace()+": "+rule)
	}
	return strings.Join(parts, "; ")
}

// validateOptimizeRequest applies struct tags and the rules that span
// several fields. maxLocations bounds the location count.
func validateOptimizeRequest(req *model.OptimizeRequest, maxLocations int) error {
	if err := validate.Struct(req); err != nil {
		return errors.New(validationDetail(err))
	}
	hasMatrix, hasLocations := len(req.Matrix) > 0, len(req.Locations) > 0
	switch {
	case hasMatrix && hasLocations:
		return errors.New("matrix and locations are mutually exclusive")
	case !hasMatrix && !hasLocations:
		return errors.New("one of matrix or locations is required")
	}
	n := len(req.Matrix) + len(req.Locations)
	if maxLocations > 0 && n > maxLocations {
		return fmt.Errorf("%d locations exceeds the limit of %d", n, maxLocations)
	}
	if hasMatrix && len(req.IDs) > 0 && len(req.IDs) != n {
		return fmt.Errorf("ids has %d entries, matrix has %d rows", len(req.IDs), n)
	}
	if hasLocations && len(req.IDs) > 0 {
		return errors.New("ids is only used with matrix; locations carry their own ids")
	}
	if hasLocations {
		seen := make(map[string]struct{}, n)
		for _, l := range req.Locations {
			if _, dup := seen[l.ID]; dup {
				return fmt.Errorf("duplicate location id %q", l.ID)
			}
			seen[l.ID] = struct{}{}
		}
	}
	if req.SpeedKph > 0 && hasMatrix {
		return errors.New("speedKph applies to locations only")
	}
	if len(req.InitialTour) > 0 && req.InitialStrategy != "" {
		return errors.New("initialTour and initialStrategy are mutually exclusive")
	}
	return nil
}
