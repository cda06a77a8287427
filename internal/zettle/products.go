package zettle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"
)

// Money is an amount in minor units (öre for SEK).
type Money struct {
	Amount     int64  `json:"amount"`
	CurrencyID string `json:"currencyId"`
}

type Category struct {
	UUID string `json:"uuid,omitempty"`
	Name string `json:"name"`
}

// RemoteProduct is a product as the provider returns it.
type RemoteProduct struct {
	UUID              string     `json:"uuid"`
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	Price             Money      `json:"price"`
	CostPrice         *Money     `json:"costPrice,omitempty"`
	Category          *Category  `json:"category,omitempty"`
	TaxRate           *float64   `json:"taxRate,omitempty"`
	UnitName          string     `json:"unitName,omitempty"`
	Barcode           string     `json:"barcode,omitempty"`
	ExternalReference string     `json:"externalReference,omitempty"`
	ETag              string     `json:"etag,omitempty"`
	UpdatedAt         *time.Time `json:"updatedAt,omitempty"`
	CreatedAt         *time.Time `json:"createdAt,omitempty"`
}

// ProductInput is the writable part of a product.
type ProductInput struct {
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Price             Money     `json:"price"`
	CostPrice         *Money    `json:"costPrice,omitempty"`
	Category          *Category `json:"category,omitempty"`
	TaxRate           *float64  `json:"taxRate,omitempty"`
	UnitName          string    `json:"unitName,omitempty"`
	Barcode           string    `json:"barcode,omitempty"`
	ExternalReference string    `json:"externalReference,omitempty"`
}

// ProductStrategies lists the known product listing variants, most current first.
func (c *Client) ProductStrategies() []Strategy {
	products, inventory, purchase := c.cfg.ProductsBaseURL, c.cfg.InventoryBaseURL, c.cfg.PurchaseBaseURL
	return []Strategy{
		{Base: products, Path: "/organizations/{org}/products/v2"},
		{Base: products, Path: "/organizations/{org}/products"},
		{Base: products, Path: "/products/v2"},
		{Base: products, Path: "/products"},
		{Base: inventory, Path: "/product-library/v1/products"},
		{Base: inventory, Path: "/product-library/products"},
		{Base: inventory, Path: "/organizations/{org}/products"},
		{Base: inventory, Path: "/organizations/{org}/products/v2"},
		{Base: purchase, Path: "/organizations/{org}/products/v2"},
		{Base: purchase, Path: "/organizations/{org}/products"},
	}
}

// GetProducts lists remote products from the first listing variant that answers.
func (c *Client) GetProducts(ctx context.Context) ([]RemoteProduct, error) {
	tok, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	org := c.orgOrSelf(ctx, tok)
	resp, err := c.probe(ctx, tok, "products", Resolve(c.ProductStrategies(), org))
	if err != nil {
		c.log.Errorw("zettle products unavailable", "err", err)
		return nil, err
	}
	return decodeProducts(resp.Body)
}

// decodeProducts accepts {"products":[...]} or a bare array.
func decodeProducts(body []byte) ([]RemoteProduct, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var out []RemoteProduct
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("zettle: decode products: %w", err)
		}
		return out, nil
	}
	var env struct {
		Products []RemoteProduct `json:"products"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("zettle: decode products: %w", err)
	}
	if env.Products == nil {
		env.Products = []RemoteProduct{}
	}
	return env.Products, nil
}

func (c *Client) productURL(uuid string) string {
	u := c.cfg.ProductsBaseURL + "/organizations/self/products/v2"
	if uuid != "" {
		u += "/" + uuid
	}
	return u
}

// CreateProduct creates a product. The uuid and etag come from the body when present,
// otherwise from the Location and ETag headers.
func (c *Client) CreateProduct(ctx context.Context, in ProductInput) (RemoteProduct, error) {
	tok, err := c.Authenticate(ctx)
	if err != nil {
		return RemoteProduct{}, err
	}
	resp, err := c.do(ctx, tok, http.MethodPost, c.productURL(""), in, nil)
	if err != nil {
		c.log.Errorw("zettle create product failed", "name", in.Name, "err", err)
		return RemoteProduct{}, err
	}
	p := productFrom(in, resp)
	if p.UUID == "" {
		if loc := resp.Header.Get("Location"); loc != "" {
			p.UUID = path.Base(strings.TrimRight(loc, "/"))
		}
	}
	if p.UUID == "" {
		return RemoteProduct{}, errors.New("zettle: create product returned no uuid")
	}
	return p, nil
}

// UpdateProduct replaces a product guarded by If-Match. A stale etag yields *ConflictError.
func (c *Client) UpdateProduct(ctx context.Context, uuid string, in ProductInput, etag string) (RemoteProduct, error) {
	tok, err := c.Authenticate(ctx)
	if err != nil {
		return RemoteProduct{}, err
	}
	resp, err := c.do(ctx, tok, http.MethodPut, c.productURL(uuid), in, ifMatch(etag))
	if err != nil {
		err = conflictOr(uuid, etag, err)
		c.log.Errorw("zettle update product failed", "uuid", uuid, "err", err)
		return RemoteProduct{}, err
	}
	p := productFrom(in, resp)
	if p.UUID == "" {
		p.UUID = uuid
	}
	return p, nil
}

// DeleteProduct removes a product guarded by If-Match.
func (c *Client) DeleteProduct(ctx context.Context, uuid, etag string) error {
	tok, err := c.Authenticate(ctx)
	if err != nil {
		return err
	}
	if _, err := c.do(ctx, tok, http.MethodDelete, c.productURL(uuid), nil, ifMatch(etag)); err != nil {
		err = conflictOr(uuid, etag, err)
		c.log.Errorw("zettle delete product failed", "uuid", uuid, "err", err)
		return err
	}
	return nil
}

func ifMatch(etag string) http.Header {
	h := http.Header{}
	if etag != "" {
		h.Set("If-Match", etag)
	}
	return h
}

func conflictOr(uuid, etag string, err error) error {
	var he *HTTPStatusError
	if errors.As(err, &he) && (he.Status == http.StatusPreconditionFailed || he.Status == http.StatusConflict) {
		return &ConflictError{UUID: uuid, ETag: etag, Err: err}
	}
	return err
}

func productFrom(in ProductInput, resp *response) RemoteProduct {
	p := RemoteProduct{
		Name: in.Name, Description: in.Description, Price: in.Price, CostPrice: in.CostPrice,
		Category: in.Category, TaxRate: in.TaxRate, UnitName: in.UnitName, Barcode: in.Barcode,
		ExternalReference: in.ExternalReference,
	}
	if len(bytes.TrimSpace(resp.Body)) > 0 {
		var got RemoteProduct
		if err := json.Unmarshal(resp.Body, &got); err == nil && got.UUID != "" {
			p = got
		}
	}
	if p.ETag == "" {
		p.ETag = resp.Header.Get("ETag")
	}
	return p
}

// CandidateState reports the circuit breaker state of a strategy ("closed", "open", "half-open").
func (c *Client) CandidateState(s Strategy) string {
	return c.breakers.State(s.Name())
}
