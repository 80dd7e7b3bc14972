package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EmergencyThresholds define quando disparar e quando rearmar o alerta automático
type EmergencyThresholds struct {
	Low   int
	Reset int
	// MaxRoadDistanceKm limita os pontos predefinidos usados como fallback
	MaxRoadDistanceKm float64
}

// WaterLevelReport é o nível enviado pelo painel da brigada
type WaterLevelReport struct {
	BrigadeName string `json:"brigadeName"`
	Level       *int   `json:"level"`
}

// BrigadeLocationRequest registra a localização da brigada
type BrigadeLocationRequest struct {
	BrigadeName string   `json:"brigadeName"`
	Location    string   `json:"location"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
}

// WaterLevelResult devolve o estado atualizado e a solicitação criada, se houver
type WaterLevelResult struct {
	Brigade *BrigadeWaterLevel `json:"brigade"`
	Request *EmergencyRequest  `json:"emergencyRequest"`
}

// EmergencyUseCase aplica a regra de despacho automático de água
type EmergencyUseCase struct {
	repository        EmergencyRepository
	geocoder          Geocoder
	thresholds        EmergencyThresholds
	pick              func(n int) int
	dispatchedCounter metric.Int64Counter
}

// NewEmergencyUseCase cria uma nova instância de EmergencyUseCase; geocoder pode ser nil
func NewEmergencyUseCase(repository EmergencyRepository, geocoder Geocoder, thresholds EmergencyThresholds) *EmergencyUseCase {
	dispatched, _ := otel.Meter("factory-service").Int64Counter("emergency_requests_dispatched",
		metric.WithDescription("Automatic emergency water requests created"))

	return &EmergencyUseCase{
		repository:        repository,
		geocoder:          geocoder,
		thresholds:        thresholds,
		pick:              rand.IntN,
		dispatchedCounter: dispatched,
	}
}

// RegisterLocation grava endereço e coordenadas da brigada
func (uc *EmergencyUseCase) RegisterLocation(ctx context.Context, brigadeID string, req BrigadeLocationRequest) (*BrigadeWaterLevel, error) {
	if (req.Lat == nil) != (req.Lng == nil) {
		return nil, NewValidationError("Validation failed", "lat and lng must be provided together")
	}
	if req.Lat != nil && (*req.Lat < -90 || *req.Lat > 90 || *req.Lng < -180 || *req.Lng > 180) {
		return nil, NewValidationError("Validation failed", "coordinates out of range")
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	brigade, err := uc.lockBrigade(ctx, tx, brigadeID, req.BrigadeName)
	if err != nil {
		return nil, err
	}
	if req.BrigadeName != "" {
		brigade.BrigadeName = req.BrigadeName
	}
	if req.Location != "" {
		brigade.Location = req.Location
	}
	if req.Lat != nil {
		brigade.Lat, brigade.Lng = req.Lat, req.Lng
	}
	brigade.UpdatedAt = time.Now()

	if err := uc.repository.UpdateBrigade(ctx, tx, brigade); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit brigade location: %w", err)
	}
	return brigade, nil
}

// ReportWaterLevel persiste o nível e cria no máximo uma solicitação por queda abaixo do limite
func (uc *EmergencyUseCase) ReportWaterLevel(ctx context.Context, brigadeID string, report WaterLevelReport, actor string) (*WaterLevelResult, error) {
	if report.Level == nil || *report.Level < 0 || *report.Level > 100 {
		return nil, NewValidationError("Validation failed", "level must be an integer between 0 and 100")
	}
	level := *report.Level

	// a geocodificação é HTTP e roda antes do lock da brigada
	var prepared *preparedLocation
	if level <= uc.thresholds.Low {
		prepared = uc.prepareLocation(ctx, brigadeID, report.BrigadeName)
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	brigade, err := uc.lockBrigade(ctx, tx, brigadeID, report.BrigadeName)
	if err != nil {
		return nil, err
	}
	if report.BrigadeName != "" {
		brigade.BrigadeName = report.BrigadeName
	}
	if brigade.BrigadeName == "" {
		brigade.BrigadeName = "Fire Brigade"
	}
	brigade.Level = level
	brigade.UpdatedAt = time.Now()

	var request *EmergencyRequest
	switch {
	case level <= uc.thresholds.Low && !brigade.AlertSent:
		if actor == "" {
			actor = brigade.BrigadeName
		}
		request = NewEmergencyRequest(brigade, prepared.For(brigade), actor)
		if err := uc.repository.InsertEmergencyRequest(ctx, tx, request); err != nil {
			return nil, err
		}
		brigade.AlertSent = true
	case level > uc.thresholds.Reset && brigade.AlertSent:
		brigade.AlertSent = false
		log.Printf("ℹ️ [EMERGENCY] Alert re-armed | BrigadeID=%s | Level=%d%%", brigadeID, level)
	}

	if err := uc.repository.UpdateBrigade(ctx, tx, brigade); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit water level: %w", err)
	}

	if request != nil {
		uc.dispatchedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("location_source", string(request.LocationSource))))
		log.Printf("🚨 [EMERGENCY] Automatic request created | BrigadeID=%s | Level=%d%% | Location=%s (%s)",
			brigadeID, level, request.BrigadeLocation, request.LocationSource)
	}
	return &WaterLevelResult{Brigade: brigade, Request: request}, nil
}

func (uc *EmergencyUseCase) lockBrigade(ctx context.Context, tx Tx, brigadeID, brigadeName string) (*BrigadeWaterLevel, error) {
	if strings.TrimSpace(brigadeID) == "" {
		return nil, NewValidationError("Validation failed", "brigadeId is required")
	}
	if err := uc.repository.EnsureBrigade(ctx, tx, brigadeID, brigadeName); err != nil {
		return nil, err
	}
	return uc.repository.GetBrigadeForUpdate(ctx, tx, brigadeID)
}

// preparedLocation é a localização resolvida fora da transação, junto com o endereço que a originou
type preparedLocation struct {
	address  string
	geocoded *ResolvedLocation
	fallback ResolvedLocation
}

// For devolve a localização para o estado travado da brigada. Coordenadas registradas vencem;
// o resultado do geocoder só vale se o endereço não mudou desde a consulta.
func (p *preparedLocation) For(brigade *BrigadeWaterLevel) ResolvedLocation {
	if loc, ok := registeredLocation(brigade); ok {
		return loc
	}
	if p.geocoded != nil && p.address == brigade.Location {
		return *p.geocoded
	}
	return p.fallback
}

// prepareLocation consulta o geocoder sem nenhuma transação aberta
func (uc *EmergencyUseCase) prepareLocation(ctx context.Context, brigadeID, brigadeName string) *preparedLocation {
	snapshot := &BrigadeWaterLevel{BrigadeID: brigadeID, BrigadeName: brigadeName}
	if stored, err := uc.repository.GetBrigade(ctx, brigadeID); err == nil {
		snapshot = stored
	} else if !errors.Is(err, ErrNotFound) {
		log.Printf("❌ [EMERGENCY] Brigade lookup failed | BrigadeID=%s | Error=%v", brigadeID, err)
	}

	prepared := &preparedLocation{address: snapshot.Location, fallback: uc.predefinedLocation()}
	if _, ok := registeredLocation(snapshot); ok || snapshot.AlertSent {
		return prepared
	}

	if uc.geocoder != nil && snapshot.Location != "" {
		coords, err := uc.geocoder.Geocode(ctx, snapshot.Location)
		if err == nil {
			prepared.geocoded = &ResolvedLocation{Name: snapshot.Location, Lat: coords.Lat, Lng: coords.Lng, Source: LocationSourceGeocoded}
		} else if !errors.Is(err, errNoGeocodeResult) {
			log.Printf("❌ [EMERGENCY] Geocoding failed | Location=%s | Error=%v", snapshot.Location, err)
		}
	}
	return prepared
}

// registeredLocation usa as coordenadas gravadas pela brigada
func registeredLocation(brigade *BrigadeWaterLevel) (ResolvedLocation, bool) {
	if !brigade.HasCoordinates() {
		return ResolvedLocation{}, false
	}
	name := brigade.Location
	if name == "" {
		name = brigade.BrigadeName
	}
	return ResolvedLocation{Name: name, Lat: *brigade.Lat, Lng: *brigade.Lng, Source: LocationSourceRegistered}, true
}

// predefinedLocation sorteia um ponto predefinido dentro do raio de despacho
func (uc *EmergencyUseCase) predefinedLocation() ResolvedLocation {
	candidates := locationsWithin(referenceBranch, uc.thresholds.MaxRoadDistanceKm)
	if len(candidates) == 0 {
		return ResolvedLocation{Name: "Cinnamon Gardens, Colombo 07", Lat: referenceBranch.Lat, Lng: referenceBranch.Lng, Source: LocationSourcePredefined}
	}
	chosen := candidates[uc.pick(len(candidates))]
	return ResolvedLocation{Name: chosen.Label(), Lat: chosen.Lat, Lng: chosen.Lng, Source: LocationSourcePredefined}
}

// GetBrigade devolve o estado persistido da brigada
func (uc *EmergencyUseCase) GetBrigade(ctx context.Context, brigadeID string) (*BrigadeWaterLevel, error) {
	return uc.repository.GetBrigade(ctx, brigadeID)
}

// ListRequests lista solicitações, filtrando por brigada quando informado
func (uc *EmergencyUseCase) ListRequests(ctx context.Context, brigadeID string) ([]EmergencyRequest, error) {
	return uc.repository.ListEmergencyRequests(ctx, brigadeID)
}
