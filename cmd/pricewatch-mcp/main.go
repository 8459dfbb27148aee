package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// compareRequest mirrors the pricewatch API request model.
type compareRequest struct {
	URL    string `json:"url"`
	MaxAge int    `json:"max_age,omitempty"`
}

// compareResponse mirrors the pricewatch API response model.
type compareResponse struct {
	Success     bool              `json:"success"`
	ProductName string            `json:"product_name"`
	Prices      map[string]string `json:"prices"`
	Results     []struct {
		Platform     string  `json:"platform"`
		Status       string  `json:"status"`
		Price        float64 `json:"price"`
		MatchedTitle string  `json:"matched_title"`
		ProductURL   string  `json:"product_url"`
	} `json:"results"`
	CacheStatus string `json:"cache_status"`
	Error       *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// identifyResponse mirrors the pricewatch identify API response.
type identifyResponse struct {
	Supported bool   `json:"supported"`
	Platform  string `json:"platform"`
	ProductID string `json:"product_id"`
}

func main() {
	apiURL := os.Getenv("PRICEWATCH_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("PRICEWATCH_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "PRICEWATCH_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"pricewatch",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	comparePricesTool := mcp.NewTool("compare_prices",
		mcp.WithDescription("Given an Amazon, Flipkart or Croma product URL, read the product's title and price there and look up the same product on the other two retailers. Returns a price or 'Not found' / 'Error' per retailer."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Product page URL on amazon.in, flipkart.com or croma.com"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Accept a cached comparison up to this many seconds old (default: 0, always fresh)"),
		),
	)
	s.AddTool(comparePricesTool, handleComparePrices(apiURL, apiKey))

	identifyTool := mcp.NewTool("identify_product",
		mcp.WithDescription("Check whether a URL is a supported retailer product page and return the retailer and product ID without loading the page."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL to identify"),
		),
	)
	s.AddTool(identifyTool, handleIdentify(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiDo sends a request to the pricewatch API and returns the response body.
func apiDo(ctx context.Context, client *http.Client, method, endpoint, apiKey string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func handleComparePrices(apiURL, apiKey string) server.ToolHandlerFunc {
	// A comparison loads up to three retailer pages with settle delays.
	client := &http.Client{Timeout: 5 * time.Minute}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		productURL, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/compare", apiKey, compareRequest{
			URL:    productURL,
			MaxAge: int(request.GetFloat("max_age", 0)),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var cmp compareResponse
		if err := json.Unmarshal(respBody, &cmp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !cmp.Success {
			errMsg := "comparison failed"
			if cmp.Error != nil {
				errMsg = fmt.Sprintf("%s: %s", cmp.Error.Code, cmp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(formatComparison(cmp)), nil
	}
}

// formatComparison renders a comparison as a short plain-text report.
func formatComparison(cmp compareResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Product: %s\n\n", cmp.ProductName)

	if len(cmp.Results) > 0 {
		for _, r := range cmp.Results {
			fmt.Fprintf(&sb, "- %s: %s", r.Platform, cmp.Prices[r.Platform])
			if r.MatchedTitle != "" {
				fmt.Fprintf(&sb, " (%s)", r.MatchedTitle)
			}
			if r.ProductURL != "" {
				fmt.Fprintf(&sb, "\n  %s", r.ProductURL)
			}
			sb.WriteString("\n")
		}
	} else {
		names := make([]string, 0, len(cmp.Prices))
		for name := range cmp.Prices {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "- %s: %s\n", name, cmp.Prices[name])
		}
	}

	if cmp.CacheStatus == "hit" {
		sb.WriteString("\n(served from cache)\n")
	}
	return sb.String()
}

func handleIdentify(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		respBody, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/identify?url="+url.QueryEscape(target), apiKey, nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var id identifyResponse
		if err := json.Unmarshal(respBody, &id); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !id.Supported {
			return mcp.NewToolResultText("Not a supported Amazon, Flipkart or Croma product URL."), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Retailer: %s\nProduct ID: %s", id.Platform, id.ProductID)), nil
	}
}
