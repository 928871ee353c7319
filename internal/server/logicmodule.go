package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store"
)

type logicModuleResponse struct {
	ModuleUUID   string `json:"module_uuid"`
	Name         string `json:"name"`
	EndpointName string `json:"endpoint_name"`
	Description  string `json:"description"`
	Endpoint     string `json:"endpoint"`
	GitHubRepo   string `json:"github_repo"`
}

func toLogicModuleResponse(module *models.LogicModule) logicModuleResponse {
	return logicModuleResponse{
		ModuleUUID:   module.ModuleID.String(),
		Name:         module.Name,
		EndpointName: module.EndpointName,
		Description:  module.Description,
		Endpoint:     module.Endpoint,
		GitHubRepo:   module.GitHubRepo,
	}
}

type logicModuleRequest struct {
	Name         string `json:"name"`
	EndpointName string `json:"endpoint_name"`
	Description  string `json:"description"`
	Endpoint     string `json:"endpoint"`
	GitHubRepo   string `json:"github_repo"`
}

func (req *logicModuleRequest) validate() validationError {
	errs := validationError{}
	if req.EndpointName == "" {
		errs["endpoint_name"] = append(errs["endpoint_name"], "This field is required.")
	} else if strings.ContainsAny(req.EndpointName, "/ ") {
		errs["endpoint_name"] = append(errs["endpoint_name"], "Endpoint name must not contain slashes or spaces.")
	}
	if req.Endpoint == "" {
		errs["endpoint"] = append(errs["endpoint"], "This field is required.")
	}
	return errs
}

func (s *Server) handleListLogicModules(w http.ResponseWriter, r *http.Request) {
	modules, err := s.registry.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list logic modules")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]logicModuleResponse, 0, len(modules))
	for _, module := range modules {
		out = append(out, toLogicModuleResponse(module))
	}

	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateLogicModule(w http.ResponseWriter, r *http.Request) {
	var req logicModuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if errs := req.validate(); len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	module := &models.LogicModule{
		Name:         req.Name,
		EndpointName: req.EndpointName,
		Description:  req.Description,
		Endpoint:     req.Endpoint,
		GitHubRepo:   req.GitHubRepo,
	}
	if module.Name == "" {
		module.Name = module.EndpointName
	}

	if err := s.registry.Register(r.Context(), module); err != nil {
		if errors.Is(err, store.ErrLogicModuleAlreadyExists) {
			respondDetail(w, http.StatusConflict, "A logic module with this endpoint name already exists.")
			return
		}
		log.Error().Err(err).Msg("Failed to register logic module")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Info().
		Str("endpoint_name", module.EndpointName).
		Str("endpoint", module.Endpoint).
		Msg("Logic module registered")

	respondJSON(w, http.StatusCreated, toLogicModuleResponse(module))
}

func (s *Server) handleGetLogicModule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid logic module id")
		return
	}

	module, err := s.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrLogicModuleNotFound) {
			respondDetail(w, http.StatusNotFound, "Not found.")
			return
		}
		log.Error().Err(err).Msg("Failed to get logic module")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, toLogicModuleResponse(module))
}

func (s *Server) handleUpdateLogicModule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid logic module id")
		return
	}

	module, err := s.registry.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrLogicModuleNotFound) {
			respondDetail(w, http.StatusNotFound, "Not found.")
			return
		}
		log.Error().Err(err).Msg("Failed to get logic module")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	var req logicModuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if errs := req.validate(); len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	module.Name = req.Name
	module.EndpointName = req.EndpointName
	module.Description = req.Description
	module.Endpoint = req.Endpoint
	module.GitHubRepo = req.GitHubRepo
	module.UpdatedAt = time.Now()

	if err := s.registry.Update(ctx, module); err != nil {
		if errors.Is(err, store.ErrLogicModuleAlreadyExists) {
			respondDetail(w, http.StatusConflict, "A logic module with this endpoint name already exists.")
			return
		}
		log.Error().Err(err).Msg("Failed to update logic module")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, toLogicModuleResponse(module))
}

func (s *Server) handleDeleteLogicModule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid logic module id")
		return
	}

	if err := s.registry.Deregister(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrLogicModuleNotFound) {
			respondDetail(w, http.StatusNotFound, "Not found.")
			return
		}
		log.Error().Err(err).Msg("Failed to deregister logic module")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
