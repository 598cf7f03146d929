package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sasya-arogya/engine/pkg/models"
)

// InsuranceTool executes crop-insurance operations against the insurance MCP
// server's HTTP surface: POST {base}/tools/call with {name, arguments}.
type InsuranceTool struct {
	baseURL     string
	httpClient  *http.Client
	certClient  *http.Client
	healthProbe *http.Client
}

// NewInsuranceTool creates the insurance adapter. Certificate generation and
// recommendation calls involve server-side PDF rendering and get the longer
// timeout.
func NewInsuranceTool(baseURL string, timeout, certTimeout time.Duration) *InsuranceTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if certTimeout <= 0 {
		certTimeout = 60 * time.Second
	}
	return &InsuranceTool{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		certClient:  &http.Client{Timeout: certTimeout},
		healthProbe: &http.Client{Timeout: 2 * time.Second},
	}
}

// mcpToolCall is the request envelope of the /tools/call endpoint.
type mcpToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// mcpResponse is the response envelope: an ordered list of content blocks.
type mcpResponse struct {
	Content []mcpContent `json:"content"`
	IsError bool         `json:"isError"`
}

type mcpContent struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Call executes one insurance operation.
func (t *InsuranceTool) Call(ctx context.Context, action models.InsuranceAction, ic *models.InsuranceContext, sessionID string) (*models.InsuranceResult, *Error) {
	if err := t.probeHealth(ctx); err != nil {
		return nil, NewError(ErrUpstreamUnavailable, "insurance MCP server not available: %v", err)
	}

	switch action {
	case models.InsuranceCalculatePremium:
		return t.calculatePremium(ctx, ic, sessionID)
	case models.InsuranceGetCompanies:
		return t.getCompanies(ctx, ic, sessionID)
	case models.InsuranceRecommend:
		return t.recommend(ctx, ic, sessionID)
	case models.InsuranceGenerateCertificate:
		return t.generateCertificate(ctx, ic, sessionID)
	default:
		return nil, NewError(ErrValidation, "unknown insurance action %q", action)
	}
}

// Health probes the MCP server's health endpoint.
func (t *InsuranceTool) Health(ctx context.Context) error {
	return t.probeHealth(ctx)
}

func (t *InsuranceTool) probeHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := t.healthProbe.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (t *InsuranceTool) calculatePremium(ctx context.Context, ic *models.InsuranceContext, sessionID string) (*models.InsuranceResult, *Error) {
	resp, terr := t.callMCP(ctx, t.httpClient, mcpToolCall{
		Name: "calculate_crop_premium",
		Arguments: map[string]any{
			"crop":         ic.Crop,
			"area_hectare": ic.AreaHectare,
			"state":        ic.State,
		},
	}, sessionID)
	if terr != nil {
		return nil, terr
	}

	text := firstText(resp)
	if text == "" {
		return nil, NewError(ErrParse, "invalid response format from MCP server")
	}
	return &models.InsuranceResult{
		Action:         models.InsuranceCalculatePremium,
		Success:        true,
		PremiumDetails: text,
		Crop:           ic.Crop,
		AreaHectare:    ic.AreaHectare,
		State:          ic.State,
	}, nil
}

func (t *InsuranceTool) getCompanies(ctx context.Context, ic *models.InsuranceContext, sessionID string) (*models.InsuranceResult, *Error) {
	resp, terr := t.callMCP(ctx, t.httpClient, mcpToolCall{
		Name:      "get_insurance_companies",
		Arguments: map[string]any{"state": ic.State},
	}, sessionID)
	if terr != nil {
		return nil, terr
	}

	text := firstText(resp)
	if text == "" {
		return nil, NewError(ErrParse, "invalid response format from MCP server")
	}
	return &models.InsuranceResult{
		Action:    models.InsuranceGetCompanies,
		Success:   true,
		Companies: text,
		State:     ic.State,
	}, nil
}

func (t *InsuranceTool) recommend(ctx context.Context, ic *models.InsuranceContext, sessionID string) (*models.InsuranceResult, *Error) {
	args := map[string]any{
		"farmer_name":  orDefault(ic.FarmerName, "Farmer"),
		"state":        ic.State,
		"area_hectare": ic.AreaHectare,
		"crop":         ic.Crop,
	}
	if strings.TrimSpace(ic.Disease) != "" {
		args["disease"] = ic.Disease
	}

	resp, terr := t.callMCP(ctx, t.certClient, mcpToolCall{
		Name:      "recommend_insurance",
		Arguments: args,
	}, sessionID)
	if terr != nil {
		return nil, terr
	}

	result := &models.InsuranceResult{
		Action:      models.InsuranceRecommend,
		Success:     true,
		FarmerName:  ic.FarmerName,
		Crop:        ic.Crop,
		Disease:     ic.Disease,
		State:       ic.State,
		AreaHectare: ic.AreaHectare,
	}
	for _, item := range resp.Content {
		switch {
		case item.Type == "text":
			result.RecommendationText = item.Text
		case item.Type == "resource" && item.MimeType == "application/pdf":
			result.PDFGenerated = true
			result.PDFURI = item.URI
			result.PDFName = item.Name
		}
	}
	return result, nil
}

func (t *InsuranceTool) generateCertificate(ctx context.Context, ic *models.InsuranceContext, sessionID string) (*models.InsuranceResult, *Error) {
	if ic.Crop == "" || ic.State == "" || ic.AreaHectare <= 0 {
		return nil, NewError(ErrValidation, "missing required parameters: farmer_name, crop, area_hectare, state")
	}

	resp, terr := t.callMCP(ctx, t.certClient, mcpToolCall{
		Name: "generate_insurance_certificate",
		Arguments: map[string]any{
			"farmer_name":  orDefault(ic.FarmerName, "Farmer"),
			"state":        ic.State,
			"area_hectare": ic.AreaHectare,
			"crop":         ic.Crop,
			"disease":      ic.Disease,
		},
	}, sessionID)
	if terr != nil {
		return nil, terr
	}

	result := &models.InsuranceResult{
		Action:      models.InsuranceGenerateCertificate,
		Success:     true,
		FarmerName:  orDefault(ic.FarmerName, "Farmer"),
		Crop:        ic.Crop,
		Disease:     ic.Disease,
		State:       ic.State,
		AreaHectare: ic.AreaHectare,
	}
	for _, item := range resp.Content {
		switch {
		case item.Type == "text":
			result.ServerResponse = item.Text
			if looksLikePremium(item.Text) {
				result.PremiumDetails = item.Text
			}
		case item.Type == "resource":
			if item.MimeType == "application/pdf" {
				result.PDFGenerated = true
				result.PDFURI = item.URI
				result.PDFName = orDefault(item.Name,
					fmt.Sprintf("insurance_certificate_%s_%s.pdf", result.FarmerName, ic.Crop))
			}
			if text := firstNonEmpty(item.Text, item.Description, item.Name); looksLikePremium(text) {
				result.PremiumDetails = text
			}
		}
	}
	if result.PremiumDetails == "" {
		result.PremiumDetails = fmt.Sprintf(
			"Premium details for %s in %s - Contact insurance provider for specific rates", ic.Crop, ic.State)
	}
	return result, nil
}

func (t *InsuranceTool) callMCP(ctx context.Context, client *http.Client, call mcpToolCall, sessionID string) (*mcpResponse, *Error) {
	body, err := json.Marshal(call)
	if err != nil {
		return nil, NewError(ErrInternal, "failed to encode MCP payload: %v", err)
	}

	slog.Info("Calling insurance MCP tool", "tool", call.Name, "session_id", sessionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/tools/call", bytes.NewReader(body))
	if err != nil {
		return nil, NewError(ErrInternal, "failed to build MCP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, wrapTransportError("insurance MCP server", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, NewError(ErrTool, "MCP server HTTP %d", resp.StatusCode)
	}

	var mcp mcpResponse
	if err := json.NewDecoder(resp.Body).Decode(&mcp); err != nil {
		return nil, NewError(ErrParse, "failed to decode MCP response: %v", err)
	}
	if mcp.IsError {
		msg := "MCP server returned error"
		if text := firstText(&mcp); text != "" {
			msg = text
		}
		return nil, NewError(ErrTool, "%s", msg)
	}
	return &mcp, nil
}

func firstText(resp *mcpResponse) string {
	for _, item := range resp.Content {
		if item.Type == "text" {
			return item.Text
		}
	}
	return ""
}

func looksLikePremium(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	return strings.Contains(lower, "premium") || strings.Contains(text, "₹")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
