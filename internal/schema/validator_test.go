package schema

import (
	"errors"
	"testing"

	"github.com/vannputh/analytics/internal/model"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	return v
}

func TestValidateRecord(t *testing.T) {
	v := newValidator(t)
	movie := model.MediumMovie
	finished := model.StatusFinished

	valid := model.Record{
		Title:      "Inception",
		Medium:     &movie,
		Status:     &finished,
		Genre:      []string{"Sci-Fi"},
		MyRating:   model.Ptr(9.5),
		Episodes:   model.Ptr(0),
		StartDate:  model.Ptr("2024-01-01"),
		FinishDate: model.Ptr("2024-01-03"),
	}
	if err := v.ValidateRecord(valid); err != nil {
		t.Fatalf("ValidateRecord(valid) error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*model.Record)
		field  string
	}{
		{"empty title", func(r *model.Record) { r.Title = "" }, "title"},
		{"blank title", func(r *model.Record) { r.Title = "   " }, "title"},
		{"rating above range", func(r *model.Record) { r.MyRating = model.Ptr(10.5) }, "my_rating"},
		{"negative average rating", func(r *model.Record) { r.AverageRating = model.Ptr(-1.0) }, "average_rating"},
		{"negative episodes", func(r *model.Record) { r.Episodes = model.Ptr(-3) }, "episodes"},
		{"unknown medium", func(r *model.Record) { m := model.Medium("Vinyl"); r.Medium = &m }, "medium"},
		{"unknown status", func(r *model.Record) { s := model.Status("Paused"); r.Status = &s }, "status"},
		{"bad date", func(r *model.Record) { r.StartDate = model.Ptr("01/02/2024") }, "start_date"},
		{"day past month end", func(r *model.Record) { r.StartDate = model.Ptr("2024-02-30") }, "start_date"},
		{"month out of range", func(r *model.Record) { r.FinishDate = model.Ptr("2024-13-45") }, "finish_date"},
		{"zero date", func(r *model.Record) { r.FinishDate = model.Ptr("0000-00-00") }, "finish_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid.Clone()
			tt.mutate(&r)
			err := v.ValidateRecord(r)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("ValidateRecord() error = %v, want *ValidationError", err)
			}
			if _, ok := ve.Fields[tt.field]; !ok {
				t.Errorf("ValidateRecord() fields = %v, want %q flagged", ve.Fields, tt.field)
			}
		})
	}
}

func TestValidateRecordBoundaries(t *testing.T) {
	v := newValidator(t)
	for _, rating := range []float64{0, 10} {
		r := model.Record{Title: "Edge", MyRating: model.Ptr(rating), AverageRating: model.Ptr(rating)}
		if err := v.ValidateRecord(r); err != nil {
			t.Errorf("ValidateRecord(rating=%v) error = %v", rating, err)
		}
	}
}

func TestValidatePreferences(t *testing.T) {
	v := newValidator(t)
	if err := v.ValidatePreferences(model.Preferences{UserID: "default", VisibleColumns: []string{"title"}}); err != nil {
		t.Errorf("ValidatePreferences() error = %v", err)
	}
	if err := v.ValidatePreferences(model.Preferences{VisibleColumns: []string{""}}); err == nil {
		t.Error("ValidatePreferences(invalid) error = nil")
	}
}
