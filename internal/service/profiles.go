package service

import (
	"strings"

	"github.com/Resinat/Prism/internal/render"
	"github.com/Resinat/Prism/internal/store"
)

// ListProfiles returns all profiles, tokens included.
func (s *NodeService) ListProfiles() ([]store.Profile, error) {
	profiles, err := s.store.ListProfiles()
	if err != nil {
		return nil, internal("list profiles", err)
	}
	if profiles == nil {
		profiles = []store.Profile{}
	}
	return profiles, nil
}

// CreateProfileRequest holds create profile parameters.
type CreateProfileRequest struct {
	Name   string   `json:"name"`
	Format string   `json:"format"`
	Tags   []string `json:"tags"`
	Types  []string `json:"types"`
}

// CreateProfile creates a profile with a freshly generated access token.
func (s *NodeService) CreateProfile(req CreateProfileRequest) (*store.Profile, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalidArg("name is required")
	}
	var format string
	if strings.TrimSpace(req.Format) != "" {
		f, err := render.ParseFormat(req.Format)
		if err != nil {
			return nil, invalidArg("format: " + err.Error())
		}
		format = string(f)
	}
	types, verr := parseTypes("types", req.Types)
	if verr != nil {
		return nil, verr
	}

	p, err := s.store.CreateProfile(store.Profile{
		Name:   name,
		Format: format,
		Tags:   normalizeTags(req.Tags),
		Types:  types,
	})
	if err != nil {
		return nil, storeError("profile", "persist profile", err)
	}
	return &p, nil
}

// DeleteProfile removes a profile; its token stops working immediately.
func (s *NodeService) DeleteProfile(id string) error {
	if err := s.store.DeleteProfile(id); err != nil {
		return storeError("profile", "delete profile", err)
	}
	s.invalidate()
	return nil
}
