// Package ai runs the admin assistant: a Gemini chat that answers questions
// about the business by calling read-only tools over the database.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-ops-dashboard/internal/apperr"
	"go-ops-dashboard/internal/database"
	"go-ops-dashboard/internal/finance"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// maxToolRounds bounds how many times the model may call tools before answering
const maxToolRounds = 5

// Tool runs one assistant function with the arguments chosen by the model
type Tool func(ctx context.Context, args map[string]any) (map[string]any, error)

// Tools is the function table the model can call
var Tools = map[string]Tool{
	"check_inventory":   checkInventory,
	"low_stock":         lowStock,
	"find_order":        findOrder,
	"financial_summary": financialSummary,
	"agent_balance":     agentBalance,
}

var declarations = []*genai.FunctionDeclaration{
	{
		Name:        "check_inventory",
		Description: "Search the product catalog. Returns ID, SKU, name, category, prices, currency and warehouse stock.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"search": {Type: genai.TypeString, Description: "Part of a product name or SKU; empty lists everything"},
			},
		},
	},
	{
		Name:        "low_stock",
		Description: "List products whose warehouse stock is at or below their alert threshold.",
	},
	{
		Name:        "find_order",
		Description: "Look up an order by its reference (ORD-XXXXXXXX) with status, customer, agent and items.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"reference": {Type: genai.TypeString, Description: "Order reference"},
			},
			Required: []string{"reference"},
		},
	},
	{
		Name:        "financial_summary",
		Description: "Revenue, costs, profit, ROAS and order counts for a period, compared with the previous period.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"period": {
					Type:        genai.TypeString,
					Description: "Reporting period",
					Enum: []string{
						finance.PeriodToday, finance.PeriodYesterday, finance.Period7Days, finance.Period30Days,
						finance.Period90Days, finance.PeriodThisMonth, finance.PeriodLastMonth, finance.PeriodThisYear,
						finance.PeriodCustom,
					},
				},
				"from": {Type: genai.TypeString, Description: "Start date (YYYY-MM-DD) for custom periods"},
				"to":   {Type: genai.TypeString, Description: "End date (YYYY-MM-DD), inclusive, for custom periods"},
			},
			Required: []string{"period"},
		},
	},
	{
		Name:        "agent_balance",
		Description: "Cash each delivery agent still owes: collected, commission, missing stock charge, paid and balance.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"agent_name": {Type: genai.TypeString, Description: "Part of the agent name; empty returns every agent"},
			},
		},
	},
}

// Execute runs the named tool. Failures are reported to the model as an
// error field rather than aborting the conversation.
func Execute(ctx context.Context, name string, args map[string]any) map[string]any {
	tool, ok := Tools[name]
	if !ok {
		return map[string]any{"error": fmt.Sprintf("unknown tool %q", name)}
	}
	out, err := tool(ctx, args)
	if err != nil {
		if _, msg, known := apperr.Lookup(err); known {
			return map[string]any{"error": msg}
		}
		return map[string]any{"error": "the lookup failed"}
	}
	return out
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func checkInventory(ctx context.Context, args map[string]any) (map[string]any, error) {
	products, meta, err := database.ListProducts(ctx, database.ProductFilter{
		Page:   database.Page{PageSize: 50},
		Search: stringArg(args, "search"),
	})
	if err != nil {
		return nil, err
	}

	type item struct {
		ID        uint   `json:"id"`
		SKU       string `json:"sku"`
		Name      string `json:"name"`
		Category  string `json:"category"`
		Cost      string `json:"cost_price"`
		Price     string `json:"sell_price"`
		Currency  string `json:"currency"`
		Warehouse int    `json:"warehouse_qty"`
		LowStock  bool   `json:"low_stock"`
	}
	items := make([]item, 0, len(products))
	for _, p := range products {
		items = append(items, item{
			ID: p.ID, SKU: p.SKU, Name: p.Name, Category: p.Category,
			Cost: p.CostPrice.StringFixed(2), Price: p.SellPrice.StringFixed(2), Currency: p.Currency,
			Warehouse: p.WarehouseQty, LowStock: p.IsLowStock(),
		})
	}
	return map[string]any{"products": items, "total": meta.Total}, nil
}

func lowStock(ctx context.Context, _ map[string]any) (map[string]any, error) {
	products, err := database.LowStockProducts(ctx, 20)
	if err != nil {
		return nil, err
	}
	type item struct {
		Name      string `json:"name"`
		SKU       string `json:"sku"`
		Warehouse int    `json:"warehouse_qty"`
		Threshold int    `json:"threshold"`
	}
	items := make([]item, 0, len(products))
	for _, p := range products {
		items = append(items, item{Name: p.Name, SKU: p.SKU, Warehouse: p.WarehouseQty, Threshold: p.LowStockThreshold})
	}
	return map[string]any{"products": items}, nil
}

func findOrder(ctx context.Context, args map[string]any) (map[string]any, error) {
	ref := stringArg(args, "reference")
	if ref == "" {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "reference is required")
	}
	order, err := database.GetOrderByReference(ctx, ref)
	if err != nil {
		return nil, err
	}

	agent := ""
	if order.Agent != nil {
		agent = order.Agent.Name
	}
	lines := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, fmt.Sprintf("%d x %s @ %s", item.Quantity, item.Product.Name, item.UnitPrice.StringFixed(2)))
	}
	return map[string]any{
		"reference":  order.Reference,
		"status":     string(order.Status),
		"customer":   order.Customer.Name,
		"phone":      order.Customer.Phone,
		"city":       order.Customer.City,
		"agent":      agent,
		"total":      order.Total.StringFixed(2),
		"currency":   order.Currency,
		"items":      lines,
		"created_at": order.CreatedAt.Format(time.RFC3339),
	}, nil
}

func financialSummary(ctx context.Context, args map[string]any) (map[string]any, error) {
	period, err := finance.Resolve(stringArg(args, "period"), stringArg(args, "from"), stringArg(args, "to"), time.Now())
	if err != nil {
		return nil, err
	}
	cmp, err := database.ComparePeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	cur := cmp.Current
	return map[string]any{
		"period":             period.Name,
		"currency":           string(cur.Currency),
		"revenue":            cur.Revenue.StringFixed(2),
		"cogs":               cur.COGS.StringFixed(2),
		"expenses":           cur.Expenses.StringFixed(2),
		"ad_spend":           cur.AdSpend.StringFixed(2),
		"commissions":        cur.Commissions.StringFixed(2),
		"net_profit":         cur.NetProfit.StringFixed(2),
		"roas":               cur.ROAS.StringFixed(2),
		"delivered":          cur.Delivered,
		"returned":           cur.Returned,
		"orders_created":     cur.OrdersCreated,
		"revenue_change_pct": cmp.Changes.Revenue.StringFixed(2),
		"profit_change_pct":  cmp.Changes.NetProfit.StringFixed(2),
	}, nil
}

func agentBalance(ctx context.Context, args map[string]any) (map[string]any, error) {
	balances, err := database.AgentBalances(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.ToLower(stringArg(args, "agent_name"))

	type row struct {
		Agent         string `json:"agent"`
		Delivered     int    `json:"delivered"`
		Collected     string `json:"collected"`
		Commission    string `json:"commission"`
		MissingCharge string `json:"missing_charge"`
		Paid          string `json:"paid"`
		Balance       string `json:"balance"`
	}
	rows := []row{}
	for _, s := range balances {
		if name != "" && !strings.Contains(strings.ToLower(s.AgentName), name) {
			continue
		}
		rows = append(rows, row{
			Agent: s.AgentName, Delivered: s.Delivered,
			Collected: s.Collected.StringFixed(2), Commission: s.Commission.StringFixed(2),
			MissingCharge: s.MissingCharge.StringFixed(2), Paid: s.Paid.StringFixed(2),
			Balance: s.Balance.StringFixed(2),
		})
	}
	if name != "" && len(rows) == 0 {
		return nil, apperr.Wrap(apperr.ErrNotFound, "no agent matching %q", name)
	}
	return map[string]any{"agents": rows, "currency": string(database.BaseCurrency)}, nil
}

// Assistant talks to Gemini on behalf of the dashboard
type Assistant struct {
	apiKey string
	model  string
	log    *zap.Logger
}

func New(apiKey, model string, log *zap.Logger) *Assistant {
	return &Assistant{apiKey: apiKey, model: model, log: log}
}

// Enabled reports whether an API key is configured
func (a *Assistant) Enabled() bool {
	return a != nil && a.apiKey != ""
}

// Ask answers a question, letting the model call tools along the way
func (a *Assistant) Ask(ctx context.Context, question string) (string, error) {
	if !a.Enabled() {
		return "", errors.New("assistant is not configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(a.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create AI client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(a.model)
	model.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt(time.Now())))

	session := model.StartChat()
	resp, err := session.SendMessage(ctx, genai.Text(question))
	if err != nil {
		return "", err
	}

	for round := 0; round < maxToolRounds; round++ {
		calls := functionCalls(resp)
		if len(calls) == 0 {
			return replyText(resp), nil
		}
		parts := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			a.log.Info("Assistant tool call", zap.String("tool", call.Name), zap.Any("args", call.Args))
			parts = append(parts, genai.FunctionResponse{Name: call.Name, Response: Execute(ctx, call.Name, call.Args)})
		}
		if resp, err = session.SendMessage(ctx, parts...); err != nil {
			return "", err
		}
	}
	return replyText(resp), nil
}

func systemPrompt(now time.Time) string {
	return fmt.Sprintf(`Today is %s. You are the operations assistant of an e-commerce back office.
Amounts in reports are in %s unless a currency is given.

RULES:
1. Never guess numbers. Call a tool and answer from its result.
2. Product questions (price, cost, stock): call 'check_inventory' with part of the name.
3. Money questions (revenue, profit, expenses, ads): call 'financial_summary' with the matching period.
4. Order questions: call 'find_order' with the reference.
5. Agent cash questions: call 'agent_balance'. A positive balance is money the agent owes.
6. You cannot change data. If asked to, explain which screen to use.`, now.Format("2006-01-02"), database.BaseCurrency)
}

func functionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	var calls []genai.FunctionCall
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if call, ok := part.(genai.FunctionCall); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func replyText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "I could not produce an answer."
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "I could not produce an answer."
	}
	return b.String()
}
