package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
	"github.com/vectordb-io/vectordb/pkg/vectordb"
)

type createCollectionReq struct {
	Name            string `json:"name" binding:"required"`
	Dimension       int    `json:"dimension" binding:"required"`
	Metric          string `json:"metric" binding:"required"`
	M               int    `json:"m"`
	EfConstruction  int    `json:"ef_construction"`
	EfSearchDefault int    `json:"ef_search_default"`
	MaxLayer        int    `json:"max_layer"`
}

func (s *Server) createCollection(c *gin.Context) {
	var req createCollectionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, vdberrors.ValidationError("invalid request body", err))
		return
	}

	col, err := s.db.CreateCollection(vectordb.CreateCollectionConfig{
		Name:            req.Name,
		Dimension:       req.Dimension,
		Metric:          req.Metric,
		M:               req.M,
		EfConstruction:  req.EfConstruction,
		EfSearchDefault: req.EfSearchDefault,
		MaxLayer:        req.MaxLayer,
	}, s.cfg)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Location", "/collections/"+col.Name())
	c.JSON(http.StatusCreated, gin.H{"name": col.Name(), "dimension": col.Dimension()})
}

func (s *Server) listCollections(c *gin.Context) {
	c.JSON(http.StatusOK, s.db.ListCollections())
}

func (s *Server) dropCollection(c *gin.Context) {
	name := c.Param("name")
	if err := s.db.DropCollection(name); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type vectorReq struct {
	ID         *uuid.UUID     `json:"id"`
	Vector     []float32      `json:"vector" binding:"required"`
	Attributes map[string]any `json:"attributes"`
}

func (s *Server) insertVector(c *gin.Context) {
	col, err := s.db.OpenCollection(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}

	var req vectorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, vdberrors.ValidationError("invalid request body", err))
		return
	}
	id := uuid.New()
	if req.ID != nil {
		id = *req.ID
	}

	if err := col.Insert(id, req.Vector, req.Attributes); err != nil {
		writeError(c, err)
		return
	}

	c.Header("Location", "/collections/"+col.Name()+"/vectors/"+id.String())
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) updateVector(c *gin.Context) {
	col, err := s.db.OpenCollection(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, vdberrors.ValidationError("invalid id", err))
		return
	}

	var req vectorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, vdberrors.ValidationError("invalid request body", err))
		return
	}

	if err := col.Update(id, req.Vector, req.Attributes); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getVector(c *gin.Context) {
	col, err := s.db.OpenCollection(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, vdberrors.ValidationError("invalid id", err))
		return
	}

	vec, attrs, err := col.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "vector": vec, "attributes": attrs})
}

func (s *Server) deleteVector(c *gin.Context) {
	col, err := s.db.OpenCollection(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, vdberrors.ValidationError("invalid id", err))
		return
	}

	if err := col.Delete(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type searchReq struct {
	Vector []float32      `json:"vector" binding:"required"`
	K      int            `json:"k" binding:"required"`
	Ef     int            `json:"ef"`
	Filter map[string]any `json:"filter"`
}

func (s *Server) search(c *gin.Context) {
	col, err := s.db.OpenCollection(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}

	var req searchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, vdberrors.ValidationError("invalid request body", err))
		return
	}

	release, err := s.acquire(c.Request.Context())
	if err != nil {
		writeError(c, vdberrors.CollectionUnavailableError("search queue wait was cancelled", err))
		return
	}
	defer release()

	hits, err := col.Search(c.Request.Context(), req.Vector, req.K, req.Ef, req.Filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hits": hits})
}

func (s *Server) stats(c *gin.Context) {
	col, err := s.db.OpenCollection(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, col.Stats())
}
