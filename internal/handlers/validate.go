// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// createRequest is the body of POST /api/v1/categories.
type createRequest struct {
	Name      string       `json:"name" validate:"required,max=200"`
	ParentID  optionalUUID `json:"parent_id" validate:"-"`
	Icon      *string      `json:"icon" validate:"omitempty,max=2048"`
	Thumbnail *string      `json:"thumbnail" validate:"omitempty,max=2048"`
	Order     *int         `json:"order" validate:"omitempty,min=-1,max=2147483647"`
	IsShow    *bool        `json:"is_show"`
}

// updateRequest is the body of PATCH /api/v1/categories/{id}. Absent
// fields are left unchanged.
type updateRequest struct {
	Name      *string      `json:"name" validate:"omitempty,max=200"`
	ParentID  optionalUUID `json:"parent_id" validate:"-"`
	Icon      *string      `json:"icon" validate:"omitempty,max=2048"`
	Thumbnail *string      `json:"thumbnail" validate:"omitempty,max=2048"`
	Order     *int         `json:"order" validate:"omitempty,min=-1,max=2147483647"`
	IsShow    *bool        `json:"is_show"`
}

// deleteManyRequest is the body of DELETE /api/v1/categories.
type deleteManyRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=1000,dive,uuid"`
}

// optionalUUID tells an absent JSON field apart from an explicit null.
// An empty string counts as null.
type optionalUUID struct {
	Set   bool
	Value uuid.NullUUID
}

// UnmarshalJSON implements json.Unmarshaler. It is only invoked when the
// field is present in the document.
func (o *optionalUUID) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = uuid.NullUUID{}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.New("parent_id must be a string or null")
	}
	if s == "" {
		o.Value = uuid.NullUUID{}
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("parent_id must be a valid UUID, got %q", s)
	}
	o.Value = uuid.NullUUID{UUID: id, Valid: true}
	return nil
}

// validateRequest checks struct tags and returns a readable message
// listing every failing field.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at most %s items", field, fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at least %s items", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
