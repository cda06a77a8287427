package zettle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	jmes "github.com/jmespath/go-jmespath"
)

// orgIDPath accepts the response shapes the discovery endpoints have used over time.
var orgIDPath = jmes.MustCompile("id || uuid || organizationUuid || organizationId || [0].id || [0].uuid")

var errNoOrgID = errors.New("zettle: no organization id in response")

func (c *Client) discoveryStrategies() []Strategy {
	return []Strategy{
		{Base: c.cfg.APIURL, Path: "/organizations/self"},
		{Base: c.cfg.APIURL, Path: "/organizations"},
		{Base: c.cfg.APIURL, Path: "/users/self/organizations"},
		{Base: c.cfg.APIURL, Path: "/merchants/self/organizations"},
	}
}

// OrganizationID returns the configured or discovered organization uuid, caching a discovered value.
func (c *Client) OrganizationID(ctx context.Context, tok StoredToken) (string, error) {
	c.orgMu.Lock()
	id := c.orgID
	c.orgMu.Unlock()
	if id != "" {
		return id, nil
	}
	id, err := FirstSuccess(ctx, "organization", Resolve(c.discoveryStrategies(), SelfOrg), func(ctx context.Context, cand Candidate) (string, error) {
		resp, err := c.do(ctx, tok, "GET", cand.URL, nil, nil)
		if err != nil {
			return "", err
		}
		return extractOrgID(resp.Body)
	})
	if err != nil {
		return "", err
	}
	c.orgMu.Lock()
	c.orgID = id
	c.orgMu.Unlock()
	c.log.Infow("zettle organization discovered", "organization_id", id)
	return id, nil
}

// orgOrSelf is the best-effort form: failures are logged and "self" paths are used.
func (c *Client) orgOrSelf(ctx context.Context, tok StoredToken) string {
	id, err := c.OrganizationID(ctx, tok)
	if err != nil {
		c.log.Infow("zettle organization discovery failed, using self paths", "err", err)
		return SelfOrg
	}
	return id
}

func extractOrgID(body []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("zettle: decode organization: %w", err)
	}
	v, err := orgIDPath.Search(doc)
	if err != nil {
		return "", err
	}
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errNoOrgID
}
