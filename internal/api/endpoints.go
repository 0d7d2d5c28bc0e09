package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Login exchanges credentials for a token pair and the profile. It never
// attempts a refresh: a 401 here means bad credentials.
func (c *Client) Login(ctx context.Context, phone, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/login/",
		body:      LoginRequest{Phone: phone, Password: password},
		anonymous: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Access == "" || out.User == nil {
		return nil, fmt.Errorf("login: incomplete response: %w", ErrMissingAccess)
	}
	return &out, nil
}

// Register creates an account. It yields no tokens.
func (c *Client) Register(ctx context.Context, r RegisterRequest) error {
	return c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/register/",
		body:      r,
		anonymous: true,
	}, nil)
}

func (c *Client) Profile(ctx context.Context) (*User, error) {
	var u User
	if err := c.Get(ctx, "/profile/", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Services(ctx context.Context) ([]Service, error) {
	var out []Service
	if err := c.Get(ctx, "/services/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ServiceBySlug returns the active service with the given slug.
func (c *Client) ServiceBySlug(ctx context.Context, slug string) (*Service, error) {
	services, err := c.Services(ctx)
	if err != nil {
		return nil, err
	}
	for i := range services {
		if services[i].Slug == slug && services[i].IsActive {
			return &services[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, slug)
}

// CreateServiceOrder posts an order and returns where to pay for it.
func (c *Client) CreateServiceOrder(ctx context.Context, o ServiceOrder) (*ServiceOrderResponse, error) {
	formData := o.FormData
	if formData == nil {
		formData = map[string]any{}
	}
	encoded, err := json.Marshal(formData)
	if err != nil {
		return nil, fmt.Errorf("encode form data: %w", err)
	}

	body := NewMultipart().
		Field("service_id", o.ServiceID.String()).
		Field("form_data_str", string(encoded))
	if o.File != nil {
		body.File("attached_file", o.FileName, o.File)
	}

	var out ServiceOrderResponse
	if err := c.Post(ctx, "/service-orders/", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SohaFields(ctx context.Context) ([]SohaField, error) {
	var out []SohaField
	if err := c.Get(ctx, "/soha-fields/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateSohaField(ctx context.Context, name string) (*SohaField, error) {
	var out SohaField
	if err := c.Post(ctx, "/soha-fields/", map[string]string{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Articles(ctx context.Context) ([]Article, error) {
	var out []Article
	if err := c.Get(ctx, "/articles/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Journals(ctx context.Context) ([]Journal, error) {
	var out []Journal
	if err := c.Get(ctx, "/journals/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Journal(ctx context.Context, id ID) (*Journal, error) {
	var out Journal
	if err := c.Get(ctx, "/journals/"+url.PathEscape(id.String())+"/", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Applications(ctx context.Context) ([]Application, error) {
	var out []Application
	if err := c.Get(ctx, "/applications/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateApplicationStatus(ctx context.Context, id ID, status ApplicationStatus) (*Application, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid application status %q", status)
	}
	var out Application
	path := "/applications/" + url.PathEscape(id.String()) + "/update-status/"
	if err := c.Patch(ctx, path, map[string]ApplicationStatus{"status": status}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FinancialReport(ctx context.Context) (FinancialReport, error) {
	var out FinancialReport
	if err := c.Get(ctx, "/financial-report/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) WriterDashboardSummary(ctx context.Context) (WriterDashboardSummary, error) {
	var out WriterDashboardSummary
	if err := c.Get(ctx, "/writer-dashboard-summary/", &out); err != nil {
		return nil, err
	}
	return out, nil
}
