package tools

const (
	WebsiteBridgeURLEnv = "WEBSITE_BRIDGE_URL"
	CRMBridgeURLEnv     = "GHL_BRIDGE_URL"
	CRMAPIKeyEnv        = "GHL_API_KEY"
)

func websiteBridge() Definition {
	fwd := Forwarder{URLEnv: WebsiteBridgeURLEnv}
	url := req("string", "website URL")
	return Definition{
		Key:         "website-bridge",
		Name:        "website-bridge",
		Description: "Website capture and solar site analysis",
		Kind:        KindInternal,
		EnvRequired: []string{WebsiteBridgeURLEnv},
		Tools: forwarded(fwd,
			Spec{Name: "capture_website_screenshot", Description: "Capture a website screenshot", Params: map[string]Param{
				"url":       url,
				"width":     param("integer", false, 1920, ""),
				"height":    param("integer", false, 1080, ""),
				"full_page": param("boolean", false, false, ""),
			}},
			Spec{Name: "get_website_favicon", Description: "Fetch a website favicon", Params: map[string]Param{"url": url}},
			Spec{Name: "analyze_solar_website_data", Description: "Analyze solar data layers for a website", Params: map[string]Param{"url": url}},
			Spec{Name: "generate_solar_insights", Description: "Generate solar insights", Params: map[string]Param{
				"url":           url,
				"analysis_data": opt("object", "output of analyze_solar_website_data"),
			}},
			Spec{Name: "generate_solar_report", Description: "Generate a solar report", Params: map[string]Param{
				"url":           url,
				"insights_data": opt("object", "output of generate_solar_insights"),
			}},
			Spec{Name: "full_solar_analysis", Description: "Run the complete solar website analysis", Params: map[string]Param{"url": url}},
		),
	}
}

func crmBridge() Definition {
	fwd := Forwarder{URLEnv: CRMBridgeURLEnv, TokenEnv: CRMAPIKeyEnv}
	id := func(desc string) Param { return req("string", desc) }
	location := opt("string", "location id")
	return Definition{
		Key:         "crm-bridge",
		Name:        "crm-bridge",
		Description: "CRM contacts, calendars, users and appointments",
		Kind:        KindInternal,
		EnvRequired: []string{CRMBridgeURLEnv, CRMAPIKeyEnv},
		Tools: forwarded(fwd,
			Spec{Name: "ghl_create_contact", Description: "Create a contact", Params: map[string]Param{
				"first_name":   req("string", ""),
				"last_name":    req("string", ""),
				"email":        req("string", ""),
				"phone":        req("string", ""),
				"location_id":  location,
				"gender":       opt("string", ""),
				"address1":     opt("string", ""),
				"city":         opt("string", ""),
				"state":        opt("string", ""),
				"postal_code":  opt("string", ""),
				"website":      opt("string", ""),
				"timezone":     param("string", false, "America/Chihuahua", ""),
				"dnd":          param("boolean", false, true, ""),
				"country":      param("string", false, "US", ""),
				"company_name": opt("string", ""),
				"assigned_to":  opt("string", ""),
				"tags":         opt("array", ""),
				"source":       param("string", false, "mcp_api", ""),
			}},
			Spec{Name: "ghl_get_contact", Description: "Get a contact", Params: map[string]Param{"contact_id": id("contact id")}},
			Spec{Name: "ghl_get_all_contacts", Description: "List contacts", Params: map[string]Param{
				"location_id": location,
				"limit":       param("integer", false, 100, ""),
			}},
			Spec{Name: "ghl_update_contact", Description: "Update a contact", Params: map[string]Param{"contact_id": id("contact id")}},
			Spec{Name: "ghl_delete_contact", Description: "Delete a contact", Params: map[string]Param{"contact_id": id("contact id")}},
			Spec{Name: "ghl_create_calendar", Description: "Create a calendar", Params: map[string]Param{
				"name":        req("string", ""),
				"location_id": location,
				"description": opt("string", ""),
			}},
			Spec{Name: "ghl_get_calendar", Description: "Get a calendar", Params: map[string]Param{"calendar_id": id("calendar id")}},
			Spec{Name: "ghl_get_all_calendars", Description: "List calendars", Params: map[string]Param{"location_id": location}},
			Spec{Name: "ghl_update_calendar", Description: "Update a calendar", Params: map[string]Param{"calendar_id": id("calendar id")}},
			Spec{Name: "ghl_delete_calendar", Description: "Delete a calendar", Params: map[string]Param{"calendar_id": id("calendar id")}},
			Spec{Name: "ghl_create_user", Description: "Create a user", Params: map[string]Param{
				"name":        req("string", ""),
				"email":       req("string", ""),
				"location_id": location,
			}},
			Spec{Name: "ghl_get_user", Description: "Get a user", Params: map[string]Param{"user_id": id("user id")}},
			Spec{Name: "ghl_get_user_by_location", Description: "Get users of a location", Params: map[string]Param{"location_id": id("location id")}},
			Spec{Name: "ghl_update_user", Description: "Update a user", Params: map[string]Param{"user_id": id("user id")}},
			Spec{Name: "ghl_delete_user", Description: "Delete a user", Params: map[string]Param{"user_id": id("user id")}},
			Spec{Name: "ghl_create_appointment", Description: "Create an appointment", Params: map[string]Param{
				"contact_id":  id("contact id"),
				"calendar_id": id("calendar id"),
				"start_time":  req("string", "RFC3339 start"),
				"end_time":    req("string", "RFC3339 end"),
				"title":       opt("string", ""),
			}},
			Spec{Name: "ghl_get_appointment", Description: "Get an appointment", Params: map[string]Param{"appointment_id": id("appointment id")}},
			Spec{Name: "ghl_update_appointment", Description: "Update an appointment", Params: map[string]Param{"appointment_id": id("appointment id")}},
		),
	}
}
