package bankdata

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Requisition - согласие пользователя на доступ к счету
type Requisition struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Link     string   `json:"link"`
	Accounts []string `json:"accounts"`
}

type institution struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type requisitionRequest struct {
	Redirect      string `json:"redirect"`
	InstitutionID string `json:"institution_id"`
	Reference     string `json:"reference"`
	UserLanguage  string `json:"user_language,omitempty"`
}

// InstitutionID ищет банк по названию в списке страны. Результат кешируется.
func (c *Client) InstitutionID(ctx context.Context, country, name string) (string, error) {
	key := strings.ToUpper(country) + ":" + strings.ToLower(name)

	id, hit, err := c.institutions.GetOrLoad(key, func() (string, error) {
		var list []institution
		path := "/institutions/?country=" + url.QueryEscape(strings.ToLower(country))
		if err := c.get(ctx, "institutions", path, &list); err != nil {
			return "", err
		}
		for _, inst := range list {
			if strings.EqualFold(inst.Name, name) {
				return inst.ID, nil
			}
		}
		return "", fmt.Errorf("%w: %s in %s", ErrInstitutionNotFound, name, country)
	})
	c.recordCache(hit, err)
	return id, err
}

// CreateRequisition открывает новую сессию привязки и отдает ссылку на согласие.
func (c *Client) CreateRequisition(ctx context.Context, institutionID, redirect string) (*Requisition, error) {
	req := requisitionRequest{
		Redirect:      redirect,
		InstitutionID: institutionID,
		Reference:     uuid.New().String(),
	}

	var resp Requisition
	if err := c.post(ctx, "requisitions", "/requisitions/", req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" || resp.Link == "" {
		return nil, fmt.Errorf("%w: requisition without id or link", ErrBadResponse)
	}

	c.logger.Info("requisition created",
		zap.String("requisition_id", resp.ID),
		zap.String("institution_id", institutionID),
	)
	return &resp, nil
}

func (c *Client) Requisition(ctx context.Context, requisitionID string) (*Requisition, error) {
	var resp Requisition
	if err := c.get(ctx, "requisition", "/requisitions/"+url.PathEscape(requisitionID)+"/", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
