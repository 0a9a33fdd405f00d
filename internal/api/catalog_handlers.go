package api

import (
	"net/http"

	"urbanharvest/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type catalogItemRequest struct {
	Title        string              `json:"title" validate:"required"`
	Description  string              `json:"description"`
	Price        decimal.Decimal     `json:"price"`
	Image        string              `json:"image"`
	Category     string              `json:"category"`
	Availability string              `json:"availability"`
	Date         string              `json:"date"`
	Location     string              `json:"location"`
	Coordinates  *models.Coordinates `json:"coordinates"`
}

func (r catalogItemRequest) toItem(t models.ItemType, id string) *models.CatalogItem {
	return &models.CatalogItem{
		ID:           id,
		Type:         t,
		Title:        r.Title,
		Description:  r.Description,
		Price:        r.Price,
		Image:        r.Image,
		Category:     r.Category,
		Availability: r.Availability,
		Date:         r.Date,
		Location:     r.Location,
		Coordinates:  r.Coordinates,
	}
}

func (s *HTTPServer) listCatalog(t models.ItemType) echo.HandlerFunc {
	return func(c echo.Context) error {
		items, err := s.svc.Catalog.List(c.Request().Context(), t)
		if err != nil {
			return err
		}
		if items == nil {
			items = []*models.CatalogItem{}
		}
		return c.JSON(http.StatusOK, items)
	}
}

func (s *HTTPServer) getCatalogItem(t models.ItemType) echo.HandlerFunc {
	return func(c echo.Context) error {
		item, err := s.svc.Catalog.Resolve(c.Request().Context(), t, c.Param("id"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, item)
	}
}

func (s *HTTPServer) createCatalogItem(t models.ItemType) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req catalogItemRequest
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}
		item := req.toItem(t, "")
		if err := s.svc.Catalog.Create(c.Request().Context(), callerFrom(c), item); err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, item)
	}
}

func (s *HTTPServer) updateCatalogItem(t models.ItemType) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req catalogItemRequest
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}
		item := req.toItem(t, c.Param("id"))
		if err := s.svc.Catalog.Update(c.Request().Context(), callerFrom(c), item); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, item)
	}
}

func (s *HTTPServer) deleteCatalogItem(t models.ItemType) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.svc.Catalog.Delete(c.Request().Context(), callerFrom(c), t, c.Param("id")); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]string{"message": "Item deleted"})
	}
}
