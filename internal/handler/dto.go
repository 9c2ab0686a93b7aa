package handler

import (
	"time"

	"github.com/iliyamo/reelsplace/internal/model"
)

type reelResponse struct {
	ID           uint64           `json:"id"`
	ReelURL      string           `json:"reel_url"`
	ThumbnailURL *string          `json:"thumbnail_url"`
	Caption      *string          `json:"caption"`
	Status       model.ReelStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func toReelResponse(r model.Reel) reelResponse {
	return reelResponse{
		ID:           r.ID,
		ReelURL:      r.ReelURL,
		ThumbnailURL: r.ThumbnailURL,
		Caption:      r.Caption,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type imageResponse struct {
	ImageURL  string `json:"image_url"`
	SortOrder int    `json:"sort_order"`
}

type placeResponse struct {
	ID              uint64          `json:"id"`
	ExternalPlaceID string          `json:"external_place_id"`
	Name            string          `json:"name"`
	Address         string          `json:"address"`
	Rating          *float64        `json:"rating"`
	ReviewCount     *int            `json:"review_count"`
	Images          []imageResponse `json:"images"`
	CreatedAt       time.Time       `json:"created_at"`
}

func toPlaceResponse(p model.Place) placeResponse {
	out := placeResponse{
		ID:              p.ID,
		ExternalPlaceID: p.ExternalPlaceID,
		Name:            p.Name,
		Address:         p.Address,
		Rating:          p.Rating,
		ReviewCount:     p.ReviewCount,
		Images:          make([]imageResponse, 0, len(p.Images)),
		CreatedAt:       p.CreatedAt,
	}
	for _, img := range p.Images {
		out.Images = append(out.Images, imageResponse{ImageURL: img.ImageURL, SortOrder: img.SortOrder})
	}
	return out
}

func toPlaceResponses(ps []model.Place) []placeResponse {
	out := make([]placeResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPlaceResponse(p))
	}
	return out
}
