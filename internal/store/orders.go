package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eduardojeem/repairboard/internal/stage"
	"github.com/eduardojeem/repairboard/pkg/models"
)

// Row is the column-level form of an order shared by the SQL implementations.
// A nil Complexity means none was recorded.
type Row struct {
	ID             string
	Stage          string
	CustomerName   string
	DeviceType     string
	DeviceBrand    string
	DeviceModel    string
	Issue          string
	Urgency        int
	Complexity     *int
	Value          float64
	TechnicianID   *string
	TechnicianName *string
	PromisedAt     *int64
	CreatedAt      int64
	UpdatedAt      int64
}

// Order converts a row, filling in defaultComplexity when none was stored.
func (r Row) Order(defaultComplexity int) models.RepairOrder {
	o := models.RepairOrder{
		ID:                  r.ID,
		Stage:               models.Stage(r.Stage),
		CustomerName:        r.CustomerName,
		DeviceType:          r.DeviceType,
		DeviceBrand:         r.DeviceBrand,
		DeviceModel:         r.DeviceModel,
		Issue:               r.Issue,
		Urgency:             r.Urgency,
		TechnicalComplexity: defaultComplexity,
		HistoricalValue:     r.Value,
		CreatedAt:           time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:           time.Unix(r.UpdatedAt, 0).UTC(),
	}
	if r.Complexity != nil {
		o.TechnicalComplexity = *r.Complexity
	}
	if r.TechnicianID != nil && *r.TechnicianID != "" {
		o.Technician = &models.Technician{ID: *r.TechnicianID}
		if r.TechnicianName != nil {
			o.Technician.Name = *r.TechnicianName
		}
	}
	if r.PromisedAt != nil {
		t := time.Unix(*r.PromisedAt, 0).UTC()
		o.PromisedAt = &t
	}
	return o
}

// ComplexityOrDefault returns the configured default, or models.DefaultTechComplexity when unset.
func ComplexityOrDefault(n int) int {
	if n <= 0 {
		return models.DefaultTechComplexity
	}
	return n
}

func validUrgency(u int) error {
	if u < models.MinUrgency || u > models.MaxUrgency {
		return fmt.Errorf("%w: urgency %d out of range %d..%d", ErrInvalid, u, models.MinUrgency, models.MaxUrgency)
	}
	return nil
}

func validComplexity(c int) error {
	if c < 1 || c > 5 {
		return fmt.Errorf("%w: technical_complexity %d out of range 1..5", ErrInvalid, c)
	}
	return nil
}

// NewRow validates in and builds the row to insert. Missing id, stage and urgency get defaults;
// a missing complexity stays missing.
func NewRow(in models.NewOrder, now time.Time) (Row, error) {
	r := Row{
		ID:           strings.TrimSpace(in.ID),
		CustomerName: strings.TrimSpace(in.CustomerName),
		DeviceType:   strings.TrimSpace(in.DeviceType),
		DeviceBrand:  strings.TrimSpace(in.DeviceBrand),
		DeviceModel:  strings.TrimSpace(in.DeviceModel),
		Issue:        strings.TrimSpace(in.Issue),
		Urgency:      in.Urgency,
		Value:        in.HistoricalValue,
		CreatedAt:    now.Unix(),
		UpdatedAt:    now.Unix(),
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CustomerName == "" {
		return Row{}, fmt.Errorf("%w: customer_name required", ErrInvalid)
	}
	st := in.Stage
	if st == "" {
		st = models.StageReceived
	}
	if _, err := stage.ToColumn(st); err != nil {
		return Row{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	r.Stage = string(st)
	if r.Urgency == 0 {
		r.Urgency = 3
	}
	if err := validUrgency(r.Urgency); err != nil {
		return Row{}, err
	}
	if in.TechnicalComplexity != 0 {
		if err := validComplexity(in.TechnicalComplexity); err != nil {
			return Row{}, err
		}
		c := in.TechnicalComplexity
		r.Complexity = &c
	}
	if r.Value < 0 {
		return Row{}, fmt.Errorf("%w: historical_value must not be negative", ErrInvalid)
	}
	if in.Technician != nil && in.Technician.ID != "" {
		id, name := in.Technician.ID, in.Technician.Name
		r.TechnicianID, r.TechnicianName = &id, &name
	}
	if in.PromisedAt != nil {
		p := in.PromisedAt.Unix()
		r.PromisedAt = &p
	}
	return r, nil
}

// ApplyPatch validates patch and applies it to r. It reports whether anything changed.
func ApplyPatch(r *Row, patch models.OrderPatch, now time.Time) (bool, error) {
	before := *r
	if patch.CustomerName != nil {
		name := strings.TrimSpace(*patch.CustomerName)
		if name == "" {
			return false, fmt.Errorf("%w: customer_name required", ErrInvalid)
		}
		r.CustomerName = name
	}
	if patch.DeviceType != nil {
		r.DeviceType = strings.TrimSpace(*patch.DeviceType)
	}
	if patch.DeviceBrand != nil {
		r.DeviceBrand = strings.TrimSpace(*patch.DeviceBrand)
	}
	if patch.DeviceModel != nil {
		r.DeviceModel = strings.TrimSpace(*patch.DeviceModel)
	}
	if patch.Issue != nil {
		r.Issue = strings.TrimSpace(*patch.Issue)
	}
	if patch.Urgency != nil {
		if err := validUrgency(*patch.Urgency); err != nil {
			return false, err
		}
		r.Urgency = *patch.Urgency
	}
	if patch.TechnicalComplexity != nil {
		if err := validComplexity(*patch.TechnicalComplexity); err != nil {
			return false, err
		}
		c := *patch.TechnicalComplexity
		r.Complexity = &c
	}
	if patch.HistoricalValue != nil {
		if *patch.HistoricalValue < 0 {
			return false, fmt.Errorf("%w: historical_value must not be negative", ErrInvalid)
		}
		r.Value = *patch.HistoricalValue
	}
	if patch.Technician != nil {
		if patch.Technician.ID == "" {
			r.TechnicianID, r.TechnicianName = nil, nil
		} else {
			id, name := patch.Technician.ID, patch.Technician.Name
			r.TechnicianID, r.TechnicianName = &id, &name
		}
	}
	if patch.PromisedAt != nil {
		if patch.PromisedAt.IsZero() {
			r.PromisedAt = nil
		} else {
			p := patch.PromisedAt.Unix()
			r.PromisedAt = &p
		}
	}
	changed := !sameRow(before, *r)
	if changed {
		r.UpdatedAt = now.Unix()
	}
	return changed, nil
}

func sameRow(a, b Row) bool {
	return a.CustomerName == b.CustomerName &&
		a.DeviceType == b.DeviceType &&
		a.DeviceBrand == b.DeviceBrand &&
		a.DeviceModel == b.DeviceModel &&
		a.Issue == b.Issue &&
		a.Urgency == b.Urgency &&
		eqPtr(a.Complexity, b.Complexity) &&
		a.Value == b.Value &&
		eqPtr(a.TechnicianID, b.TechnicianID) &&
		eqPtr(a.TechnicianName, b.TechnicianName) &&
		eqPtr(a.PromisedAt, b.PromisedAt)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ValidStage parses a stage for SetOrderStage.
func ValidStage(s models.Stage) error {
	if _, err := stage.ToColumn(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// ListLimit clamps a requested list size.
func ListLimit(n int) int {
	if n <= 0 || n > models.DefaultOrderListLimit {
		return models.DefaultOrderListLimit
	}
	return n
}

// DemoOrders are seeded into an empty store by SeedDemo.
func DemoOrders(now time.Time) []models.NewOrder {
	day := 24 * time.Hour
	promised := now.Add(2 * day)
	late := now.Add(-day)
	return []models.NewOrder{
		{ID: "K-100", Stage: models.StageReceived, CustomerName: "Ana Torres", DeviceType: "phone", DeviceBrand: "Apple", DeviceModel: "iPhone 13", Issue: "cracked screen", Urgency: 5, TechnicalComplexity: 2, HistoricalValue: 1200, PromisedAt: &promised},
		{ID: "K-101", Stage: models.StageDiagnosing, CustomerName: "Luis Benítez", DeviceType: "laptop", DeviceBrand: "Lenovo", DeviceModel: "ThinkPad T14", Issue: "no power", Urgency: 3, HistoricalValue: 450, Technician: &models.Technician{ID: "tech-1", Name: "Marta"}},
		{ID: "K-102", Stage: models.StageRepairing, CustomerName: "Carla Ruiz", DeviceType: "phone", DeviceBrand: "Samsung", DeviceModel: "Galaxy S22", Issue: "battery swelling", Urgency: 4, TechnicalComplexity: 3, HistoricalValue: 300, PromisedAt: &late, Technician: &models.Technician{ID: "tech-2", Name: "Julio"}},
		{ID: "K-103", Stage: models.StageWaitingParts, CustomerName: "Diego Paz", DeviceType: "tablet", DeviceBrand: "Apple", DeviceModel: "iPad Air", Issue: "charging port", Urgency: 2, TechnicalComplexity: 4, HistoricalValue: 80},
		{ID: "K-104", Stage: models.StageReady, CustomerName: "Eva Gómez", DeviceType: "console", DeviceBrand: "Sony", DeviceModel: "PS5", Issue: "HDMI port", Urgency: 1, TechnicalComplexity: 5, HistoricalValue: 600, Technician: &models.Technician{ID: "tech-1", Name: "Marta"}},
	}
}
