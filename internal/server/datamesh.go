package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meshstack/coregate/internal/models"
	"github.com/meshstack/coregate/internal/store"
)

type modelResponse struct {
	ModelUUID               string `json:"model_uuid"`
	LogicModuleEndpointName string `json:"logic_module_endpoint_name"`
	Model                   string `json:"model"`
	Endpoint                string `json:"endpoint"`
	LookupFieldName         string `json:"lookup_field_name"`
}

func toModelResponse(model *models.LogicModuleModel) modelResponse {
	return modelResponse{
		ModelUUID:               model.ModelID.String(),
		LogicModuleEndpointName: model.LogicModuleEndpointName,
		Model:                   model.Model,
		Endpoint:                model.Endpoint,
		LookupFieldName:         model.LookupFieldName,
	}
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	list, err := s.modules.ListModels(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list data mesh models")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]modelResponse, 0, len(list))
	for _, model := range list {
		out = append(out, toModelResponse(model))
	}

	respondJSON(w, http.StatusOK, out)
}

type createModelRequest struct {
	LogicModuleEndpointName string `json:"logic_module_endpoint_name"`
	Model                   string `json:"model"`
	Endpoint                string `json:"endpoint"`
	LookupFieldName         string `json:"lookup_field_name"`
}

func (s *Server) handleCreateModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createModelRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	errs := validationError{}
	if req.LogicModuleEndpointName == "" {
		errs["logic_module_endpoint_name"] = append(errs["logic_module_endpoint_name"], "This field is required.")
	}
	if req.Model == "" {
		errs["model"] = append(errs["model"], "This field is required.")
	}
	if req.Endpoint == "" {
		errs["endpoint"] = append(errs["endpoint"], "This field is required.")
	}
	if len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	// the owning module must exist before a model can reference it
	if _, err := s.modules.GetByEndpointName(ctx, req.LogicModuleEndpointName); err != nil {
		if errors.Is(err, store.ErrLogicModuleNotFound) {
			respondValidation(w, validationError{"logic_module_endpoint_name": {"Unknown logic module."}})
			return
		}
		log.Error().Err(err).Msg("Failed to look up logic module")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	lookup := req.LookupFieldName
	if lookup == "" {
		lookup = "id"
	}

	model := &models.LogicModuleModel{
		ModelID:                 uuid.New(),
		LogicModuleEndpointName: req.LogicModuleEndpointName,
		Model:                   req.Model,
		Endpoint:                req.Endpoint,
		LookupFieldName:         lookup,
	}

	if err := s.modules.CreateModel(ctx, model); err != nil {
		if errors.Is(err, store.ErrModelAlreadyExists) {
			respondDetail(w, http.StatusConflict, "This model is already registered for the logic module.")
			return
		}
		log.Error().Err(err).Msg("Failed to create data mesh model")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusCreated, toModelResponse(model))
}

type relationshipResponse struct {
	RelationshipUUID string `json:"relationship_uuid"`
	OriginModelUUID  string `json:"origin_model_uuid"`
	RelatedModelUUID string `json:"related_model_uuid"`
	Key              string `json:"key"`
}

func toRelationshipResponse(rel *models.Relationship) relationshipResponse {
	return relationshipResponse{
		RelationshipUUID: rel.RelationshipID.String(),
		OriginModelUUID:  rel.OriginModelID.String(),
		RelatedModelUUID: rel.RelatedModelID.String(),
		Key:              rel.Key,
	}
}

func (s *Server) handleListRelationships(w http.ResponseWriter, r *http.Request) {
	list, err := s.modules.ListRelationships(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list relationships")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]relationshipResponse, 0, len(list))
	for _, rel := range list {
		out = append(out, toRelationshipResponse(rel))
	}

	respondJSON(w, http.StatusOK, out)
}

type createRelationshipRequest struct {
	OriginModelUUID  string `json:"origin_model_uuid"`
	RelatedModelUUID string `json:"related_model_uuid"`
	Key              string `json:"key"`
}

func (s *Server) handleCreateRelationship(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRelationshipRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	errs := validationError{}
	originID, err := uuid.Parse(req.OriginModelUUID)
	if err != nil {
		errs["origin_model_uuid"] = append(errs["origin_model_uuid"], "Enter a valid UUID.")
	}
	relatedID, err := uuid.Parse(req.RelatedModelUUID)
	if err != nil {
		errs["related_model_uuid"] = append(errs["related_model_uuid"], "Enter a valid UUID.")
	}
	if req.Key == "" {
		errs["key"] = append(errs["key"], "This field is required.")
	}
	if len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	for field, id := range map[string]uuid.UUID{
		"origin_model_uuid":  originID,
		"related_model_uuid": relatedID,
	} {
		if _, err := s.modules.GetModel(ctx, id); err != nil {
			if errors.Is(err, store.ErrModelNotFound) {
				respondValidation(w, validationError{field: {"Unknown model."}})
				return
			}
			log.Error().Err(err).Msg("Failed to look up model")
			respondDetail(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	rel := &models.Relationship{
		RelationshipID: uuid.New(),
		OriginModelID:  originID,
		RelatedModelID: relatedID,
		Key:            req.Key,
	}

	if err := s.modules.CreateRelationship(ctx, rel); err != nil {
		if errors.Is(err, store.ErrRelationshipExists) {
			respondDetail(w, http.StatusConflict, "A relationship with this origin and key already exists.")
			return
		}
		log.Error().Err(err).Msg("Failed to create relationship")
		respondDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusCreated, toRelationshipResponse(rel))
}
