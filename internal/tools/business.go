package tools

import (
	"context"
	"fmt"
	"math"
	"time"
)

var now = time.Now

func businessTools() Definition {
	return Definition{
		Key:         "business-tools",
		Name:        "business-tools",
		Description: "Marketing and revenue calculators",
		Kind:        KindCustom,
		Tools: []Tool{
			{
				Spec: Spec{
					Name:        "calculate_roi",
					Description: "Calculate return on investment with time period",
					Params: map[string]Param{
						"investment":         req("number", "amount invested"),
						"return_amount":      req("number", "amount returned"),
						"time_period_months": param("integer", false, 12, "investment horizon in months"),
					},
				},
				Handler: calculateROI,
			},
			{
				Spec: Spec{
					Name:        "calculate_lead_value",
					Description: "Calculate the lifetime value of a lead",
					Params: map[string]Param{
						"conversion_rate":   req("number", "fraction of leads that convert"),
						"average_deal_size": req("number", "average revenue per converted lead"),
						"cost_per_lead":     req("number", "acquisition cost per lead"),
					},
				},
				Handler: calculateLeadValue,
			},
			{
				Spec: Spec{
					Name:        "analyze_campaign_performance",
					Description: "Analyze marketing campaign performance metrics",
					Params: map[string]Param{
						"impressions": req("integer", ""),
						"clicks":      req("integer", ""),
						"conversions": req("integer", ""),
						"cost":        req("number", ""),
						"revenue":     param("number", false, 0, ""),
					},
				},
				Handler: analyzeCampaign,
			},
			{
				Spec: Spec{
					Name:        "generate_business_report",
					Description: "Generate a business performance report",
					Params: map[string]Param{
						"metrics": req("object", "revenue, cost, leads, conversions, conversion_rate"),
						"period":  param("string", false, "monthly", ""),
					},
				},
				Handler: generateReport,
			},
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func calculateROI(_ context.Context, params map[string]any) (any, error) {
	investment, err := number(params, "investment")
	if err != nil {
		return nil, err
	}
	returned, err := number(params, "return_amount")
	if err != nil {
		return nil, err
	}
	months, err := number(params, "time_period_months")
	if err != nil {
		return nil, err
	}
	if investment == 0 {
		return nil, fmt.Errorf("%w: investment must be non-zero", ErrInvalidParams)
	}
	if months <= 0 {
		return nil, fmt.Errorf("%w: time_period_months must be positive", ErrInvalidParams)
	}
	roi := (returned - investment) / investment * 100
	return map[string]any{
		"investment":         investment,
		"return_amount":      returned,
		"time_period_months": int(months),
		"roi_percentage":     round2(roi),
		"annualized_roi":     round2(roi / months * 12),
		"profit":             round2(returned - investment),
	}, nil
}

func calculateLeadValue(_ context.Context, params map[string]any) (any, error) {
	rate, err := number(params, "conversion_rate")
	if err != nil {
		return nil, err
	}
	deal, err := number(params, "average_deal_size")
	if err != nil {
		return nil, err
	}
	cost, err := number(params, "cost_per_lead")
	if err != nil {
		return nil, err
	}
	expected := rate * deal
	profit := expected - cost
	roi := 0.0
	if cost > 0 {
		roi = profit / cost * 100
	}
	return map[string]any{
		"conversion_rate":   rate,
		"average_deal_size": deal,
		"cost_per_lead":     cost,
		"expected_revenue":  round2(expected),
		"profit_per_lead":   round2(profit),
		"roi_per_lead":      round2(roi),
	}, nil
}

func ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

func analyzeCampaign(_ context.Context, params map[string]any) (any, error) {
	values := map[string]float64{}
	for _, key := range []string{"impressions", "clicks", "conversions", "cost", "revenue"} {
		v, err := number(params, key)
		if err != nil {
			return nil, err
		}
		values[key] = v
	}
	impressions, clicks, conversions := values["impressions"], values["clicks"], values["conversions"]
	cost, revenue := values["cost"], values["revenue"]
	return map[string]any{
		"impressions": int(impressions),
		"clicks":      int(clicks),
		"conversions": int(conversions),
		"cost":        cost,
		"revenue":     revenue,
		"metrics": map[string]any{
			"ctr":                 round2(ratio(clicks, impressions) * 100),
			"conversion_rate":     round2(ratio(conversions, clicks) * 100),
			"cost_per_click":      round2(ratio(cost, clicks)),
			"cost_per_conversion": round2(ratio(cost, conversions)),
			"roi":                 round2(ratio(revenue-cost, cost) * 100),
		},
	}, nil
}

func generateReport(_ context.Context, params map[string]any) (any, error) {
	metrics, _ := params["metrics"].(map[string]any)
	get := func(key string) float64 {
		v, err := number(metrics, key)
		if err != nil {
			return 0
		}
		return v
	}
	revenue, cost := get("revenue"), get("cost")
	profit := revenue - cost
	recommendations := []string{}
	if profit < 0 {
		recommendations = append(recommendations, "Consider reducing costs or improving conversion rates")
	}
	if get("conversion_rate") < 5 {
		recommendations = append(recommendations, "Focus on improving lead quality and nurturing")
	}
	return map[string]any{
		"period":       text(params, "period"),
		"generated_at": now().UTC().Format(time.RFC3339),
		"summary": map[string]any{
			"total_revenue":   revenue,
			"total_cost":      cost,
			"profit":          profit,
			"leads_generated": get("leads"),
			"conversions":     get("conversions"),
		},
		"recommendations": recommendations,
	}, nil
}
