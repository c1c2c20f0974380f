package weather_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/mcp"
	"github.com/effective-security/mcpchat/tools"
	"github.com/effective-security/mcpchat/tools/weather"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const alertsCA = `{
	"type": "FeatureCollection",
	"features": [
		{"properties": {"event": "Heat Advisory", "areaDesc": "Sacramento Valley", "severity": "Moderate",
			"description": "Hot conditions with temperatures up to 105.", "instruction": "Drink plenty of fluids."}},
		{"properties": {"event": "Wind Advisory", "areaDesc": "Bay Area", "severity": "Minor"}},
		{"properties": {"event": "Red Flag Warning", "areaDesc": "North Coast", "severity": "Severe",
			"description": "Critical fire weather.", "instruction": null}},
		{"properties": {"event": "Dense Fog Advisory"}}
	]
}`

const forecastMTR = `{
	"properties": {
		"periods": [
			{"name": "Today", "temperature": 65, "temperatureUnit": "F", "windSpeed": "10 mph", "windDirection": "W", "detailedForecast": "Sunny, with a high near 65."},
			{"name": "Tonight", "temperature": 52, "temperatureUnit": "F", "windSpeed": "5 to 10 mph", "windDirection": "WSW", "detailedForecast": "Mostly clear."},
			{"name": "Saturday", "temperature": 67, "temperatureUnit": "F", "windSpeed": "10 mph", "windDirection": "W", "detailedForecast": "Sunny."},
			{"name": "Saturday Night", "temperature": 53, "temperatureUnit": "F", "windSpeed": "10 mph", "windDirection": "W", "detailedForecast": "Patchy fog."},
			{"name": "Sunday", "temperature": 66, "temperatureUnit": "F", "windSpeed": "10 mph", "windDirection": "W", "detailedForecast": "Mostly sunny."},
			{"name": "Sunday Night", "temperature": 54, "temperatureUnit": "F", "windSpeed": "5 mph", "windDirection": "W", "detailedForecast": "Cloudy."}
		]
	}
}`

func newNWS(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/alerts/active/area/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, weather.UserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "application/geo+json", r.Header.Get("Accept"))

		switch strings.TrimPrefix(r.URL.Path, "/alerts/active/area/") {
		case "CA":
			fmt.Fprint(w, alertsCA)
		case "TX":
			fmt.Fprint(w, `{"type": "FeatureCollection", "features": []}`)
		case "ZZ":
			fmt.Fprint(w, `{"title": "no features"}`)
		default:
			http.Error(w, `{"status": 400}`, http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/points/", func(w http.ResponseWriter, r *http.Request) {
		switch strings.TrimPrefix(r.URL.Path, "/points/") {
		case "37.7749,-122.4194":
			fmt.Fprintf(w, `{"properties": {"forecast": "%s/gridpoints/MTR/85,105/forecast"}}`, srv.URL)
		case "40,-74":
			fmt.Fprintf(w, `{"properties": {"forecast": "%s/gridpoints/OKX/33,35/forecast"}}`, srv.URL)
		case "0,0":
			fmt.Fprint(w, `{"properties": {}}`)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/gridpoints/MTR/85,105/forecast", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, forecastMTR)
	})
	mux.HandleFunc("/gridpoints/OKX/33,35/forecast", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetAlerts(t *testing.T) {
	t.Parallel()
	srv := newNWS(t)
	c := weather.New().WithBaseURL(srv.URL)
	ctx := context.Background()

	res, err := c.GetAlerts(ctx, &weather.AlertsRequest{State: "ca"})
	require.NoError(t, err)
	assert.Equal(t, `Event: Heat Advisory
Area: Sacramento Valley
Severity: Moderate
Description: Hot conditions with temperatures up to 105.
Instructions: Drink plenty of fluids.

Event: Wind Advisory
Area: Bay Area
Severity: Minor
Description: No description available
Instructions: No specific instructions provided

Event: Red Flag Warning
Area: North Coast
Severity: Severe
Description: Critical fire weather.
Instructions: No specific instructions provided`, res)

	tcases := []struct {
		state string
		exp   string
	}{
		{state: "TX", exp: weather.NoActiveAlerts},
		{state: "ZZ", exp: weather.NoAlertsFound},
		{state: "XX", exp: weather.NoAlertsFound},
	}
	for _, tc := range tcases {
		res, err := c.GetAlerts(ctx, &weather.AlertsRequest{State: tc.state})
		require.NoError(t, err)
		assert.Equal(t, tc.exp, res, tc.state)
	}

	// transport error
	res, err = weather.New().WithBaseURL("http://127.0.0.1:1").GetAlerts(ctx, &weather.AlertsRequest{State: "CA"})
	require.NoError(t, err)
	assert.Equal(t, weather.NoAlertsFound, res)
}

func TestGetForecast(t *testing.T) {
	t.Parallel()
	srv := newNWS(t)
	c := weather.New().WithBaseURL(srv.URL).WithHTTPClient(&http.Client{Timeout: 5 * time.Second})
	assert.Equal(t, srv.URL, c.BaseURL())
	ctx := context.Background()

	res, err := c.GetForecast(ctx, weather.NewForecastRequest(37.7749, -122.4194))
	require.NoError(t, err)

	periods := strings.Split(res, "\n\n")
	require.Len(t, periods, 5)
	assert.Equal(t, "Period: Today\nTemperature: 65 F\nWind: 10 mph W\nForecast: Sunny, with a high near 65.", periods[0])
	assert.Equal(t, "Period: Sunday\nTemperature: 66 F\nWind: 10 mph W\nForecast: Mostly sunny.", periods[4])

	tcases := []struct {
		name     string
		lat, lon float64
	}{
		{name: "forecast_failed", lat: 40, lon: -74},
		{name: "no_forecast_url", lat: 0, lon: 0},
		{name: "unknown_point", lat: 51.5, lon: -0.12},
	}
	for _, tc := range tcases {
		res, err := c.GetForecast(ctx, weather.NewForecastRequest(tc.lat, tc.lon))
		require.NoError(t, err)
		assert.Equal(t, weather.ForecastUnavailable, res, tc.name)
	}

	_, err = c.GetForecast(ctx, &weather.ForecastRequest{Latitude: weather.NewForecastRequest(37.7749, 0).Latitude})
	assert.EqualError(t, err, "latitude and longitude are required")
}

func TestServer(t *testing.T) {
	srv := newNWS(t)
	ctx := context.Background()

	s := mcp.NewServer("weather", "v0.0.1")
	require.NoError(t, weather.Register(s, weather.New().WithBaseURL(srv.URL)))
	assert.Equal(t, []string{weather.ToolGetAlerts, weather.ToolGetForecast}, s.Tools())

	ct, st := mcpsdk.NewInMemoryTransports()
	_, err := s.Connect(ctx, st)
	require.NoError(t, err)

	saved := mcp.TransportBuilder
	mcp.TransportBuilder = func(context.Context, *mcp.ProviderConfig) (mcpsdk.Transport, error) {
		return ct, nil
	}
	t.Cleanup(func() { mcp.TransportBuilder = saved })

	session, err := mcp.Connect(ctx, &mcp.ProviderConfig{Command: "weather"})
	require.NoError(t, err)
	defer session.Close()

	list, err := session.ListTools(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"get_alerts", "get_forecast"}, tools.Names(list))

	schema, ok := list[1].InputSchema.(map[string]any)
	require.True(t, ok)
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "latitude")
	assert.Contains(t, props, "longitude")

	res, err := session.CallTool(ctx, "get_alerts", map[string]any{"state": "TX"})
	require.NoError(t, err)
	assert.Equal(t, weather.NoActiveAlerts, res.String())

	res, err = session.CallTool(ctx, "get_forecast", map[string]any{"latitude": 37.7749, "longitude": -122.4194})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.String(), "Period: Today\n"), res.String())

	// missing state
	_, err = session.CallTool(ctx, "get_alerts", map[string]any{})
	require.Error(t, err)

	// missing latitude is not the equator
	_, err = session.CallTool(ctx, "get_forecast", map[string]any{"longitude": -122.4194})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tools.ErrToolExecution))
	assert.Contains(t, err.Error(), "Latitude")

	_, err = session.CallTool(ctx, "get_forecast", map[string]any{"latitude": 91, "longitude": 0})
	require.Error(t, err)

	res, err = session.CallTool(ctx, "get_forecast", map[string]any{"latitude": 0, "longitude": 0})
	require.NoError(t, err)
	assert.Equal(t, weather.ForecastUnavailable, res.String())
}
