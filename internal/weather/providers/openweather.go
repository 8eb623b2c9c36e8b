package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/agroweather/internal/weather"
)

const (
	owmShortRangeDays = 5
	owmLongRangeDays  = 10

	owmEndpointShort = "forecast"
	owmEndpointDaily = "forecast/daily"
)

// OpenWeatherProvider implements the weather.Provider interface for
// OpenWeatherMap. Horizons up to five days use the 3-hourly endpoint, longer
// ones the daily endpoint.
type OpenWeatherProvider struct {
	name    string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    "openweathermap",
		baseURL: "https://api.openweathermap.org/data/2.5",
		client:  client,
		circuit: newBreaker("openweathermap"),
	}
}

func (p *OpenWeatherProvider) Name() string              { return p.name }
func (p *OpenWeatherProvider) Priority() int             { return 10 }
func (p *OpenWeatherProvider) MaxHorizon() int           { return owmLongRangeDays }
func (p *OpenWeatherProvider) RequiresCredentials() bool { return true }

func (p *OpenWeatherProvider) Fetch(ctx context.Context, coords weather.Coordinates, days int, apiKey string) (weather.RawResponse, error) {
	if apiKey == "" {
		return weather.RawResponse{}, fmt.Errorf("%w: openweathermap api key is not configured", weather.ErrInvalidInput)
	}

	endpoint := owmEndpointShort
	cnt := days * 8
	if days > owmShortRangeDays {
		endpoint = owmEndpointDaily
		cnt = days
	}

	values := url.Values{}
	values.Set("lat", fmt.Sprintf("%f", coords.Latitude))
	values.Set("lon", fmt.Sprintf("%f", coords.Longitude))
	values.Set("appid", apiKey)
	values.Set("units", "imperial")
	values.Set("cnt", fmt.Sprintf("%d", cnt))

	req, err := newGet(fmt.Sprintf("%s/%s?%s", p.baseURL, endpoint, values.Encode()), "")
	if err != nil {
		return weather.RawResponse{}, err
	}
	body, err := doRequest(ctx, p.client, p.circuit, req)
	if err != nil {
		return weather.RawResponse{}, err
	}

	return weather.RawResponse{
		Provider:    p.name,
		Endpoint:    endpoint,
		Body:        body,
		Coordinates: coords,
		Days:        days,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

type owmCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

type owmShortResponse struct {
	City struct {
		Timezone int `json:"timezone"` // seconds east of UTC
	} `json:"city"`
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp     float64 `json:"temp"`
			TempMin  float64 `json:"temp_min"`
			TempMax  float64 `json:"temp_max"`
			Humidity float64 `json:"humidity"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Pop  float64 `json:"pop"`
		Rain struct {
			ThreeH float64 `json:"3h"`
		} `json:"rain"`
		Snow struct {
			ThreeH float64 `json:"3h"`
		} `json:"snow"`
		Weather []owmCondition `json:"weather"`
	} `json:"list"`
}

type owmDailyResponse struct {
	City struct {
		Timezone int `json:"timezone"`
	} `json:"city"`
	List []struct {
		Dt   int64 `json:"dt"`
		Temp struct {
			Day float64 `json:"day"`
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"temp"`
		Humidity float64        `json:"humidity"`
		Speed    float64        `json:"speed"`
		Pop      float64        `json:"pop"`
		Rain     float64        `json:"rain"`
		Snow     float64        `json:"snow"`
		Weather  []owmCondition `json:"weather"`
	} `json:"list"`
}

func (p *OpenWeatherProvider) Normalize(raw weather.RawResponse) ([]weather.DailyForecast, error) {
	switch raw.Endpoint {
	case owmEndpointShort:
		return p.normalizeShort(raw.Body)
	case owmEndpointDaily:
		return p.normalizeDaily(raw.Body)
	default:
		return nil, malformed(p.name, fmt.Errorf("unknown endpoint %q", raw.Endpoint))
	}
}

// dayBucket accumulates 3-hourly records for one calendar date.
type dayBucket struct {
	date      time.Time
	high, low float64
	tempSum   float64
	humSum    float64
	windSum   float64
	precipMm  float64
	pop       float64
	n         int
	descCount map[string]int
	descOrder []string
}

func (b *dayBucket) description() string {
	best, bestN := "", 0
	for _, d := range b.descOrder {
		if b.descCount[d] > bestN {
			best, bestN = d, b.descCount[d]
		}
	}
	return best
}

// normalizeShort groups sub-daily records by local calendar date and takes
// max/min/mean per day.
func (p *OpenWeatherProvider) normalizeShort(body []byte) ([]weather.DailyForecast, error) {
	var resp owmShortResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed(p.name, err)
	}
	if len(resp.List) == 0 {
		return nil, malformed(p.name, fmt.Errorf("empty forecast list"))
	}

	zone := time.FixedZone("local", resp.City.Timezone)
	buckets := make(map[string]*dayBucket)
	var order []string

	for _, item := range resp.List {
		local := time.Unix(item.Dt, 0).In(zone)
		k := local.Format("2006-01-02")
		b, ok := buckets[k]
		if !ok {
			b = &dayBucket{
				date:      weather.CalendarDay(local),
				high:      item.Main.TempMax,
				low:       item.Main.TempMin,
				descCount: make(map[string]int),
			}
			buckets[k] = b
			order = append(order, k)
		}

		if item.Main.TempMax > b.high {
			b.high = item.Main.TempMax
		}
		if item.Main.TempMin < b.low {
			b.low = item.Main.TempMin
		}
		b.tempSum += item.Main.Temp
		b.humSum += item.Main.Humidity
		b.windSum += item.Wind.Speed
		b.precipMm += item.Rain.ThreeH + item.Snow.ThreeH
		if item.Pop > b.pop {
			b.pop = item.Pop
		}
		b.n++

		if len(item.Weather) > 0 {
			d := item.Weather[0].Description
			if b.descCount[d] == 0 {
				b.descOrder = append(b.descOrder, d)
			}
			b.descCount[d]++
		}
	}

	days := make([]weather.DailyForecast, 0, len(order))
	for _, k := range order {
		b := buckets[k]
		n := float64(b.n)
		days = append(days, weather.DailyForecast{
			Date:                     b.date,
			TempHigh:                 b.high,
			TempLow:                  b.low,
			TempAvg:                  b.tempSum / n,
			Humidity:                 b.humSum / n,
			PrecipitationAmount:      mmToInches(b.precipMm),
			PrecipitationProbability: b.pop * 100,
			WindSpeedMph:             ptr(b.windSum / n),
			ShortDescription:         b.description(),
			Confidence:               0.9,
			Source:                   p.name,
		})
	}
	return days, nil
}

func (p *OpenWeatherProvider) normalizeDaily(body []byte) ([]weather.DailyForecast, error) {
	var resp owmDailyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed(p.name, err)
	}
	if len(resp.List) == 0 {
		return nil, malformed(p.name, fmt.Errorf("empty daily list"))
	}

	zone := time.FixedZone("local", resp.City.Timezone)
	days := make([]weather.DailyForecast, 0, len(resp.List))
	for _, item := range resp.List {
		desc := ""
		if len(item.Weather) > 0 {
			desc = item.Weather[0].Description
		}
		days = append(days, weather.DailyForecast{
			Date:                     weather.CalendarDay(time.Unix(item.Dt, 0).In(zone)),
			TempHigh:                 item.Temp.Max,
			TempLow:                  item.Temp.Min,
			TempAvg:                  (item.Temp.Max + item.Temp.Min) / 2,
			Humidity:                 item.Humidity,
			PrecipitationAmount:      mmToInches(item.Rain + item.Snow),
			PrecipitationProbability: item.Pop * 100,
			WindSpeedMph:             ptr(item.Speed),
			ShortDescription:         desc,
			Confidence:               0.8,
			Source:                   p.name,
		})
	}
	return days, nil
}
