package tools

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCalculateROI(t *testing.T) {
	out, err := calculateROI(context.Background(), map[string]any{
		"investment": 1000.0, "return_amount": 1500.0, "time_period_months": 6.0,
	})
	if err != nil {
		t.Fatalf("calculate roi failed: %v", err)
	}
	res := out.(map[string]any)
	if res["roi_percentage"] != 50.0 {
		t.Fatalf("expected roi 50, got %v", res["roi_percentage"])
	}
	if res["annualized_roi"] != 100.0 {
		t.Fatalf("expected annualized roi 100, got %v", res["annualized_roi"])
	}
	if res["profit"] != 500.0 {
		t.Fatalf("expected profit 500, got %v", res["profit"])
	}
}

func TestCalculateROIZeroInvestment(t *testing.T) {
	_, err := calculateROI(context.Background(), map[string]any{
		"investment": 0.0, "return_amount": 10.0, "time_period_months": 12.0,
	})
	if !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected invalid params, got %v", err)
	}
}

func TestCalculateLeadValue(t *testing.T) {
	out, err := calculateLeadValue(context.Background(), map[string]any{
		"conversion_rate": 0.1, "average_deal_size": 1000.0, "cost_per_lead": 50.0,
	})
	if err != nil {
		t.Fatalf("lead value failed: %v", err)
	}
	res := out.(map[string]any)
	if res["expected_revenue"] != 100.0 || res["profit_per_lead"] != 50.0 || res["roi_per_lead"] != 100.0 {
		t.Fatalf("unexpected lead value result: %+v", res)
	}
}

func TestAnalyzeCampaignZeroDenominators(t *testing.T) {
	out, err := analyzeCampaign(context.Background(), map[string]any{
		"impressions": 0.0, "clicks": 0.0, "conversions": 0.0, "cost": 0.0, "revenue": 0.0,
	})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	metrics := out.(map[string]any)["metrics"].(map[string]any)
	for k, v := range metrics {
		if v != 0.0 {
			t.Fatalf("expected %s to be 0 with zero denominators, got %v", k, v)
		}
	}
}

func TestGenerateReportRecommendations(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	old := now
	now = func() time.Time { return fixed }
	defer func() { now = old }()

	out, err := generateReport(context.Background(), map[string]any{
		"metrics": map[string]any{"revenue": 100.0, "cost": 250.0, "conversion_rate": 2.0},
		"period":  "weekly",
	})
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	res := out.(map[string]any)
	if res["generated_at"] != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected timestamp %v", res["generated_at"])
	}
	recs := res["recommendations"].([]string)
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %v", recs)
	}
}
