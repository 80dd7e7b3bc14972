package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BrigadeWaterLevel guarda o último nível reportado por uma brigada
type BrigadeWaterLevel struct {
	BrigadeID   string    `json:"brigadeId" db:"brigade_id"`
	BrigadeName string    `json:"brigadeName" db:"brigade_name"`
	Location    string    `json:"location,omitempty" db:"location"`
	Level       int       `json:"level" db:"level"`
	AlertSent   bool      `json:"alertSent" db:"alert_sent"`
	Lat         *float64  `json:"lat,omitempty" db:"lat"`
	Lng         *float64  `json:"lng,omitempty" db:"lng"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// HasCoordinates reporta se a brigada tem coordenadas registradas
func (b *BrigadeWaterLevel) HasCoordinates() bool {
	return b.Lat != nil && b.Lng != nil
}

// LocationSource indica de onde vieram as coordenadas de uma solicitação
type LocationSource string

const (
	LocationSourceRegistered LocationSource = "registered"
	LocationSourceGeocoded   LocationSource = "geocoded"
	LocationSourcePredefined LocationSource = "predefined"
)

// EmergencyRequest é uma solicitação automática de abastecimento de água
type EmergencyRequest struct {
	ID              string         `json:"id" db:"id"`
	BrigadeID       string         `json:"brigadeId" db:"brigade_id"`
	BrigadeName     string         `json:"brigadeName" db:"brigade_name"`
	BrigadeLocation string         `json:"brigadeLocation" db:"brigade_location"`
	RequestType     string         `json:"requestType" db:"request_type"`
	Priority        string         `json:"priority" db:"priority"`
	WaterLevel      string         `json:"waterLevel" db:"water_level"`
	Description     string         `json:"description" db:"description"`
	Lat             float64        `json:"lat" db:"lat"`
	Lng             float64        `json:"lng" db:"lng"`
	LocationSource  LocationSource `json:"locationSource" db:"location_source"`
	Status          string         `json:"status" db:"status"`
	RequestedBy     string         `json:"requestedBy" db:"requested_by"`
	CreatedAt       time.Time      `json:"createdAt" db:"created_at"`
}

// NewEmergencyRequest monta a solicitação crítica para um nível baixo
func NewEmergencyRequest(brigade *BrigadeWaterLevel, loc ResolvedLocation, requestedBy string) *EmergencyRequest {
	return &EmergencyRequest{
		ID:              uuid.New().String(),
		BrigadeID:       brigade.BrigadeID,
		BrigadeName:     brigade.BrigadeName,
		BrigadeLocation: loc.Name,
		RequestType:     "Emergency Water Supply",
		Priority:        "Critical",
		WaterLevel:      fmt.Sprintf("%d%%", brigade.Level),
		Description: fmt.Sprintf(
			"AUTOMATIC REQUEST: Water level critically low at %d%%. Immediate water supply required for emergency operations.",
			brigade.Level,
		),
		Lat:            loc.Lat,
		Lng:            loc.Lng,
		LocationSource: loc.Source,
		Status:         "Pending",
		RequestedBy:    requestedBy,
		CreatedAt:      time.Now(),
	}
}

// ResolvedLocation é o resultado da cadeia de fallback de localização
type ResolvedLocation struct {
	Name   string
	Lat    float64
	Lng    float64
	Source LocationSource
}
