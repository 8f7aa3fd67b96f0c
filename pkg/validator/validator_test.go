package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

type testQueryParams struct {
	Sensor  string `json:"sensor" validate:"required,oneof=dht bme other"`
	Minutes int    `json:"minutes" validate:"gte=1"`
	Zone    string `json:"zone" validate:"omitempty,timezone"`
}

func TestValidateStructSuccess(t *testing.T) {
	params := testQueryParams{
		Sensor:  "bme",
		Minutes: 60,
		Zone:    "Europe/Prague",
	}

	if err := ValidateStruct(params); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	params := testQueryParams{
		Sensor:  "",
		Minutes: 0,
		Zone:    "not/a/zone",
	}

	err := ValidateStruct(params)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(vErrs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d", len(vErrs))
	}

	foundMinutes := false
	for _, v := range vErrs {
		if v.Field == "minutes" {
			foundMinutes = true
		}
	}

	if !foundMinutes {
		t.Fatal("expected minutes field to be present in validation errors")
	}
}

func TestValidateStructUsesMapstructureNames(t *testing.T) {
	type section struct {
		Path string `mapstructure:"path" validate:"required"`
	}

	err := ValidateStruct(section{})
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if vErrs[0].Field != "path" {
		t.Fatalf("expected mapstructure tag name, got %s", vErrs[0].Field)
	}
}

func TestValidateVar(t *testing.T) {
	if err := ValidateVar(15, "gte=1"); err != nil {
		t.Fatalf("expected 15 to satisfy gte=1, got %v", err)
	}
	if err := ValidateVar(0, "gte=1"); err == nil {
		t.Fatal("expected 0 to fail gte=1")
	}
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("hexcolour", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return len(s) == 7 && s[0] == '#'
	})
	if err != nil {
		t.Fatalf("register validation: %v", err)
	}

	type custom struct {
		Value string `validate:"hexcolour"`
	}

	if err := ValidateStruct(custom{Value: "#a1b2c3"}); err != nil {
		t.Fatalf("expected validation to pass, got %v", err)
	}
	if err := ValidateStruct(custom{Value: "red"}); err == nil {
		t.Fatal("expected validation to fail for non-matching value")
	}
}
