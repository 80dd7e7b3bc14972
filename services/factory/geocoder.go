package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var errNoGeocodeResult = errors.New("no geocode result")

// Coordinates é um par latitude/longitude
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Geocoder resolve um endereço livre em coordenadas
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Coordinates, error)
}

// NominatimGeocoder consulta um serviço compatível com /search?format=json do Nominatim
type NominatimGeocoder struct {
	client *resty.Client
}

// NewNominatimGeocoder cria uma nova instância de NominatimGeocoder
func NewNominatimGeocoder(baseURL string, timeout time.Duration) *NominatimGeocoder {
	return &NominatimGeocoder{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("User-Agent", "aqualink-factory-service"),
	}
}

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode devolve a primeira coordenada encontrada
func (g *NominatimGeocoder) Geocode(ctx context.Context, query string) (Coordinates, error) {
	var results []nominatimResult
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"q": query, "format": "json", "limit": "1"}).
		SetResult(&results).
		Get("/search")
	if err != nil {
		return Coordinates{}, fmt.Errorf("geocoder request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return Coordinates{}, fmt.Errorf("geocoder returned %d", resp.StatusCode())
	}
	if len(results) == 0 {
		return Coordinates{}, errNoGeocodeResult
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("invalid latitude %q: %w", results[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("invalid longitude %q: %w", results[0].Lon, err)
	}
	return Coordinates{Lat: lat, Lng: lng}, nil
}

const (
	earthRadiusKm = 6371.0
	// roadFactor aproxima a distância por estrada a partir da distância em linha reta
	roadFactor = 1.3
)

// HaversineKm devolve a distância em linha reta entre dois pontos
func HaversineKm(a, b Coordinates) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// RoadDistanceKm estima a distância por estrada
func RoadDistanceKm(a, b Coordinates) float64 {
	return HaversineKm(a, b) * roadFactor
}

// PredefinedLocation é um ponto conhecido usado como último recurso
type PredefinedLocation struct {
	Coordinates
	Address string
	Area    string
}

// Label formata o endereço exibido na solicitação
func (p PredefinedLocation) Label() string {
	return p.Address + ", " + p.Area
}

// referenceBranch é a filial de onde partem os caminhões (Cinnamon Gardens)
var referenceBranch = Coordinates{Lat: 6.9106, Lng: 79.8648}

var predefinedLocations = []PredefinedLocation{
	{Coordinates{6.9355, 79.8430}, "Fort, Galle Road", "Colombo 01"},
	{Coordinates{6.9219, 79.8507}, "Slave Island, Kompannavidiya", "Colombo 02"},
	{Coordinates{6.9063, 79.8530}, "Kollupitiya, Galle Road", "Colombo 03"},
	{Coordinates{6.9004, 79.8560}, "Bambalapitiya, Galle Road", "Colombo 04"},
	{Coordinates{6.8797, 79.8652}, "Havelock Town, Galle Road", "Colombo 05"},
	{Coordinates{6.8741, 79.8612}, "Wellawatte, Galle Road", "Colombo 06"},
	{Coordinates{6.9106, 79.8648}, "Cinnamon Gardens, Reid Avenue", "Colombo 07"},
	{Coordinates{6.9183, 79.8760}, "Borella, Baseline Road", "Colombo 08"},
	{Coordinates{6.9391, 79.8787}, "Dematagoda, Baseline Road", "Colombo 09"},
	{Coordinates{6.9337, 79.8641}, "Maradana, Baseline Road", "Colombo 10"},
	{Coordinates{6.9385, 79.8577}, "Pettah Market Area", "Colombo 11"},
	{Coordinates{6.9378, 79.8614}, "Hulftsdorp, Baseline Road", "Colombo 12"},
	{Coordinates{6.9486, 79.8608}, "Kotahena, Negombo Road", "Colombo 13"},
	{Coordinates{6.9522, 79.8737}, "Grandpass, Negombo Road", "Colombo 14"},
	{Coordinates{6.9633, 79.8669}, "Mutwal, Negombo Road", "Colombo 15"},
	{Coordinates{6.7730, 79.8816}, "Moratuwa, Galle Road", "Moratuwa"},
	{Coordinates{6.8500, 79.9200}, "Kesbewa, High Level Road", "Kesbewa"},
	{Coordinates{6.9900, 79.9500}, "Katunayake, Airport Road", "Katunayake"},
	{Coordinates{6.7200, 79.9800}, "Beruwala, Galle Road", "Beruwala"},
}

// locationsWithin filtra os pontos a até maxRoadKm da origem
func locationsWithin(origin Coordinates, maxRoadKm float64) []PredefinedLocation {
	var within []PredefinedLocation
	for _, loc := range predefinedLocations {
		if RoadDistanceKm(origin, loc.Coordinates) <= maxRoadKm {
			within = append(within, loc)
		}
	}
	return within
}
