package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/agroweather/internal/weather"
)

var durham = weather.Coordinates{Latitude: 35.9940, Longitude: -78.8986}

const nwsForecastBody = `{"properties":{"periods":[
 {"name":"Today","startTime":"2026-10-14T06:00:00-04:00","isDaytime":true,"temperature":72,"temperatureUnit":"F",
  "windSpeed":"5 to 10 mph","shortForecast":"Sunny","detailedForecast":"Sunny, high near 72.",
  "probabilityOfPrecipitation":{"value":10},"relativeHumidity":{"value":60}},
 {"name":"Tonight","startTime":"2026-10-14T18:00:00-04:00","isDaytime":false,"temperature":48,"temperatureUnit":"F",
  "windSpeed":"5 mph","shortForecast":"Clear","detailedForecast":"Clear.",
  "probabilityOfPrecipitation":{"value":40},"relativeHumidity":{"value":80}},
 {"name":"Wednesday","startTime":"2026-10-15T06:00:00-04:00","isDaytime":true,"temperature":75,"temperatureUnit":"F",
  "windSpeed":"10 mph","shortForecast":"Partly Sunny","detailedForecast":"",
  "probabilityOfPrecipitation":{"value":null},"relativeHumidity":{"value":null}}
]}}`

func newNWSServer(t *testing.T, forecastStatus int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		switch {
		case strings.HasPrefix(r.URL.Path, "/points/"):
			_, _ = w.Write([]byte(`{"properties":{"gridId":"RAH","gridX":59,"gridY":64}}`))
		case r.URL.Path == "/gridpoints/RAH/59,64/forecast":
			w.WriteHeader(forecastStatus)
			_, _ = w.Write([]byte(nwsForecastBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNWSFetchAndNormalize(t *testing.T) {
	srv := newNWSServer(t, http.StatusOK)
	p := NewNWSProvider(srv.Client(), "test-agent")
	p.baseURL = srv.URL

	raw, err := p.Fetch(context.Background(), durham, 7, "")
	require.NoError(t, err)
	assert.Equal(t, "nws", raw.Provider)

	days, err := p.Normalize(raw)
	require.NoError(t, err)
	require.Len(t, days, 2)

	first := days[0]
	assert.Equal(t, 72.0, first.TempHigh)
	assert.Equal(t, 48.0, first.TempLow)
	assert.Equal(t, 60.0, first.TempAvg)
	assert.Equal(t, 70.0, first.Humidity)
	assert.Equal(t, 40.0, first.PrecipitationProbability)
	assert.InDelta(t, 0.1, first.PrecipitationAmount, 1e-9)
	require.NotNil(t, first.WindSpeedMph)
	assert.Equal(t, 7.5, *first.WindSpeedMph)
	assert.Equal(t, "Sunny", first.ShortDescription)

	// Unpaired daytime period: low estimated from the high.
	second := days[1]
	assert.Equal(t, 75.0, second.TempHigh)
	assert.Equal(t, 55.0, second.TempLow)
	assert.Equal(t, 0.0, second.PrecipitationProbability)
}

func TestNWSServerErrorIsTransient(t *testing.T) {
	srv := newNWSServer(t, http.StatusServiceUnavailable)
	p := NewNWSProvider(srv.Client(), "")
	p.baseURL = srv.URL

	_, err := p.Fetch(context.Background(), durham, 7, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, weather.ErrTransientNetwork)
}

func TestNWSLeadingNightPeriod(t *testing.T) {
	p := NewNWSProvider(nil, "")
	body := `{"properties":{"periods":[
	 {"startTime":"2026-10-14T18:00:00-04:00","isDaytime":false,"temperature":50,"temperatureUnit":"F","windSpeed":"calm"}
	]}}`
	days, err := p.Normalize(weather.RawResponse{Body: []byte(body)})
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, 68.0, days[0].TempHigh)
	assert.Equal(t, 50.0, days[0].TempLow)
	assert.Nil(t, days[0].WindSpeedMph)
	assert.Equal(t, "calm", days[0].WindSpeedText)
}

func TestNWSMalformed(t *testing.T) {
	p := NewNWSProvider(nil, "")
	_, err := p.Normalize(weather.RawResponse{Body: []byte(`{"properties":{"periods":[]}}`)})
	assert.ErrorIs(t, err, weather.ErrMalformedResponse)

	_, err = p.Normalize(weather.RawResponse{Body: []byte(`not json`)})
	assert.ErrorIs(t, err, weather.ErrMalformedResponse)
}

func TestOpenWeatherShortRangeGroupsByDate(t *testing.T) {
	// Two records on one local day, one on the next. Timezone is UTC.
	body := `{"city":{"timezone":0},"list":[
	 {"dt":1791936000,"main":{"temp":60,"temp_min":55,"temp_max":62,"humidity":50},"wind":{"speed":4},"pop":0.2,
	  "rain":{"3h":2.54},"weather":[{"description":"light rain"}]},
	 {"dt":1791946800,"main":{"temp":70,"temp_min":65,"temp_max":74,"humidity":70},"wind":{"speed":8},"pop":0.6,
	  "weather":[{"description":"light rain"}]},
	 {"dt":1792022400,"main":{"temp":66,"temp_min":58,"temp_max":71,"humidity":40},"wind":{"speed":6},"pop":0,
	  "weather":[{"description":"clear sky"}]}
	]}`

	var gotPath, gotCnt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCnt = r.URL.Query().Get("cnt")
		assert.Equal(t, "imperial", r.URL.Query().Get("units"))
		assert.Equal(t, "k", r.URL.Query().Get("appid"))
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	p := NewOpenWeatherProvider(srv.Client())
	p.baseURL = srv.URL

	raw, err := p.Fetch(context.Background(), durham, 2, "k")
	require.NoError(t, err)
	assert.Equal(t, "/forecast", gotPath)
	assert.Equal(t, "16", gotCnt)

	days, err := p.Normalize(raw)
	require.NoError(t, err)
	require.Len(t, days, 2)

	d := days[0]
	assert.Equal(t, 74.0, d.TempHigh)
	assert.Equal(t, 55.0, d.TempLow)
	assert.Equal(t, 65.0, d.TempAvg)
	assert.Equal(t, 60.0, d.Humidity)
	assert.InDelta(t, 0.1, d.PrecipitationAmount, 1e-9)
	assert.InDelta(t, 60.0, d.PrecipitationProbability, 1e-9)
	require.NotNil(t, d.WindSpeedMph)
	assert.Equal(t, 6.0, *d.WindSpeedMph)
	assert.Equal(t, "light rain", d.ShortDescription)
	assert.Equal(t, 0.9, d.Confidence)
	assert.Equal(t, "clear sky", days[1].ShortDescription)
}

func TestOpenWeatherLongRangeUsesDailyEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"city":{"timezone":0},"list":[
		 {"dt":1791936000,"temp":{"day":70,"min":50,"max":80},"humidity":55,"speed":9,"pop":0.3,"rain":5.08,
		  "weather":[{"description":"scattered clouds"}]}]}`))
	}))
	defer srv.Close()

	p := NewOpenWeatherProvider(srv.Client())
	p.baseURL = srv.URL

	raw, err := p.Fetch(context.Background(), durham, 8, "k")
	require.NoError(t, err)
	assert.Equal(t, "/forecast/daily", gotPath)

	days, err := p.Normalize(raw)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, 65.0, days[0].TempAvg)
	assert.InDelta(t, 0.2, days[0].PrecipitationAmount, 1e-9)
	assert.Equal(t, 0.8, days[0].Confidence)
}

func TestOpenWeatherRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenWeatherProvider(srv.Client())
	p.baseURL = srv.URL

	_, err := p.Fetch(context.Background(), durham, 3, "k")
	assert.ErrorIs(t, err, weather.ErrQuotaExceeded)
}

func TestOpenWeatherMissingKey(t *testing.T) {
	p := NewOpenWeatherProvider(http.DefaultClient)
	_, err := p.Fetch(context.Background(), durham, 3, "")
	assert.ErrorIs(t, err, weather.ErrInvalidInput)
}

func TestWeatherAPINormalize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast.json", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("days"))
		_, _ = w.Write([]byte(`{"forecast":{"forecastday":[
		 {"date":"2026-10-14","day":{"maxtemp_f":81.2,"mintemp_f":58.1,"avgtemp_f":69.4,"avghumidity":64,
		  "totalprecip_in":0.12,"daily_chance_of_rain":70,"daily_chance_of_snow":0,"maxwind_mph":11.4,
		  "condition":{"text":"Patchy rain possible"}}}]}}`))
	}))
	defer srv.Close()

	p := NewWeatherAPIProvider(srv.Client())
	p.baseURL = srv.URL

	raw, err := p.Fetch(context.Background(), durham, 3, "k")
	require.NoError(t, err)
	days, err := p.Normalize(raw)
	require.NoError(t, err)
	require.Len(t, days, 1)

	d := days[0]
	assert.Equal(t, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), d.Date)
	assert.Equal(t, 81.2, d.TempHigh)
	assert.Equal(t, 58.1, d.TempLow)
	assert.Equal(t, 70.0, d.PrecipitationProbability)
	assert.Equal(t, 11.4, *d.WindSpeedMph)
	assert.Equal(t, "Patchy rain possible", d.ShortDescription)
}

func TestWeatherAPIQuotaBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":2007,"message":"API key has exceeded calls per month quota."}}`))
	}))
	defer srv.Close()

	p := NewWeatherAPIProvider(srv.Client())
	p.baseURL = srv.URL

	_, err := p.Fetch(context.Background(), durham, 3, "k")
	assert.ErrorIs(t, err, weather.ErrQuotaExceeded)
}

func TestWeatherAPIForbiddenIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":2008,"message":"API key has been disabled."}}`))
	}))
	defer srv.Close()

	p := NewWeatherAPIProvider(srv.Client())
	p.baseURL = srv.URL

	_, err := p.Fetch(context.Background(), durham, 3, "k")
	assert.ErrorIs(t, err, weather.ErrMalformedResponse)
	assert.NotErrorIs(t, err, weather.ErrQuotaExceeded)
}

func TestHistoricalSynthesize(t *testing.T) {
	p := NewHistoricalProvider()
	start := time.Date(2026, 1, 10, 15, 0, 0, 0, time.UTC)

	days := p.Synthesize(durham, start, 14)
	require.Len(t, days, 14)
	for i, d := range days {
		assert.Equal(t, time.Date(2026, 1, 10+i, 0, 0, 0, 0, time.UTC), d.Date)
		assert.Equal(t, HistoricalName, d.Source)
		assert.Equal(t, 0.6, d.Confidence)
		assert.Less(t, d.TempLow, d.TempHigh)
		assert.GreaterOrEqual(t, d.PrecipitationProbability, 0.0)
		assert.LessOrEqual(t, d.PrecipitationProbability, 100.0)
	}
	// January in the Piedmont freezes overnight.
	assert.Less(t, days[0].TempLow, 35.0)

	// Deterministic.
	assert.Equal(t, days, p.Synthesize(durham, start, 14))
}

func TestHistoricalSouthernHemisphereShift(t *testing.T) {
	p := NewHistoricalProvider()
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	north := p.Synthesize(durham, start, 1)[0]
	south := p.Synthesize(weather.Coordinates{Latitude: -33.9, Longitude: 18.4}, start, 1)[0]
	assert.Greater(t, south.TempHigh, north.TempHigh+20)
}

func TestHistoricalRoundTripThroughAdapterPipeline(t *testing.T) {
	p := NewHistoricalProvider()
	raw, err := p.Fetch(context.Background(), durham, 5, "")
	require.NoError(t, err)
	days, err := p.Normalize(raw)
	require.NoError(t, err)
	assert.Len(t, days, 5)
}
