// Package weather provides the weather tools backed by the National Weather Service API:
// get_alerts for the active alerts of a US state,
// and get_forecast for the forecast of a location.
package weather

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/mcp"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

// Tool names
const (
	ToolGetAlerts   = "get_alerts"
	ToolGetForecast = "get_forecast"
)

// Texts returned when the NWS has no data
const (
	NoAlertsFound       = "No alerts found for the given state."
	NoActiveAlerts      = "No active alerts for this state."
	ForecastUnavailable = "Unable to fetch forecast for this location."
)

const (
	maxAlerts  = 3
	maxPeriods = 5
)

// AlertsRequest is the input of get_alerts.
type AlertsRequest struct {
	State string `json:"state" yaml:"state" validate:"required" jsonschema:"description=Two-letter US state code (e.g. CA or NY)"`
}

// ForecastRequest is the input of get_forecast.
// The coordinates are pointers so that a missing one is not taken as zero.
type ForecastRequest struct {
	Latitude  *float64 `json:"latitude" yaml:"latitude" validate:"required,min=-90,max=90" jsonschema:"description=Latitude of the location"`
	Longitude *float64 `json:"longitude" yaml:"longitude" validate:"required,min=-180,max=180" jsonschema:"description=Longitude of the location"`
}

// NewForecastRequest returns the request for the location
func NewForecastRequest(latitude, longitude float64) *ForecastRequest {
	return &ForecastRequest{Latitude: &latitude, Longitude: &longitude}
}

type alertsResponse struct {
	Features *[]alertFeature `json:"features"`
}

type alertFeature struct {
	Properties alertProperties `json:"properties"`
}

type alertProperties struct {
	Event       *string `json:"event"`
	AreaDesc    *string `json:"areaDesc"`
	Severity    *string `json:"severity"`
	Description *string `json:"description"`
	Instruction *string `json:"instruction"`
}

type pointsResponse struct {
	Properties struct {
		Forecast string `json:"forecast"`
	} `json:"properties"`
}

type forecastResponse struct {
	Properties struct {
		Periods []forecastPeriod `json:"periods"`
	} `json:"properties"`
}

type forecastPeriod struct {
	Name             string  `json:"name"`
	Temperature      float64 `json:"temperature"`
	TemperatureUnit  string  `json:"temperatureUnit"`
	WindSpeed        string  `json:"windSpeed"`
	WindDirection    string  `json:"windDirection"`
	DetailedForecast string  `json:"detailedForecast"`
}

// Register adds get_alerts and get_forecast to the server.
func Register(s *mcp.Server, c *Client) error {
	err := mcp.RegisterTool[AlertsRequest](s, ToolGetAlerts,
		"Get weather alerts for a US state.",
		c.GetAlerts)
	if err != nil {
		return errors.WithMessagef(err, "unable to register %s", ToolGetAlerts)
	}
	err = mcp.RegisterTool[ForecastRequest](s, ToolGetForecast,
		"Get the weather forecast for a location.",
		c.GetForecast)
	if err != nil {
		return errors.WithMessagef(err, "unable to register %s", ToolGetForecast)
	}
	return nil
}

// GetAlerts returns up to three active alerts of the state.
func (c *Client) GetAlerts(ctx context.Context, req *AlertsRequest) (string, error) {
	state := strings.ToUpper(strings.TrimSpace(req.State))
	u := fmt.Sprintf("%s/alerts/active/area/%s", c.baseURL, url.PathEscape(state))

	var data alertsResponse
	if err := c.get(ctx, u, &data); err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "status", "alerts_unavailable", "state", state, "err", err.Error())
		return NoAlertsFound, nil
	}
	if data.Features == nil {
		return NoAlertsFound, nil
	}
	features := *data.Features
	if len(features) == 0 {
		return NoActiveAlerts, nil
	}

	alerts := make([]string, 0, maxAlerts)
	for i := 0; i < len(features) && i < maxAlerts; i++ {
		alerts = append(alerts, formatAlert(&features[i].Properties))
	}
	return strings.Join(alerts, "\n\n"), nil
}

// GetForecast returns the forecast of the next five periods at the location.
func (c *Client) GetForecast(ctx context.Context, req *ForecastRequest) (string, error) {
	if req == nil || req.Latitude == nil || req.Longitude == nil {
		return "", errors.New("latitude and longitude are required")
	}
	point := formatFloat(*req.Latitude) + "," + formatFloat(*req.Longitude)

	var points pointsResponse
	if err := c.get(ctx, c.baseURL+"/points/"+point, &points); err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "status", "points_unavailable", "point", point, "err", err.Error())
		return ForecastUnavailable, nil
	}
	if points.Properties.Forecast == "" {
		logger.ContextKV(ctx, xlog.WARNING, "status", "no_forecast_url", "point", point)
		return ForecastUnavailable, nil
	}

	var forecast forecastResponse
	if err := c.get(ctx, points.Properties.Forecast, &forecast); err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "status", "forecast_unavailable", "point", point, "err", err.Error())
		return ForecastUnavailable, nil
	}

	periods := forecast.Properties.Periods
	if len(periods) > maxPeriods {
		periods = periods[:maxPeriods]
	}
	list := make([]string, 0, len(periods))
	for i := range periods {
		list = append(list, formatPeriod(&periods[i]))
	}
	return strings.Join(list, "\n\n"), nil
}

func formatAlert(p *alertProperties) string {
	return fmt.Sprintf("Event: %s\nArea: %s\nSeverity: %s\nDescription: %s\nInstructions: %s",
		valueOr(p.Event, "Unknown"),
		valueOr(p.AreaDesc, "Unknown"),
		valueOr(p.Severity, "Unknown"),
		valueOr(p.Description, "No description available"),
		valueOr(p.Instruction, "No specific instructions provided"),
	)
}

func formatPeriod(p *forecastPeriod) string {
	return fmt.Sprintf("Period: %s\nTemperature: %s %s\nWind: %s %s\nForecast: %s",
		p.Name,
		formatFloat(p.Temperature), p.TemperatureUnit,
		p.WindSpeed, p.WindDirection,
		p.DetailedForecast,
	)
}

func valueOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return values.StringsCoalesce(*s, def)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
