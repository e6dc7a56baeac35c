package ops

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"govgate/internal/registry"
)

// The service-backed groups are deliberately thin: each handler collects
// its parameters, calls the platform service, and returns the decoded
// response. Write operations say so in their tool description.

const writeNote = " This operation modifies platform data."

func registerRegistryOps(deps Deps) error {
	descriptors := []registry.Descriptor{
		{
			Tool: mcp.NewTool("registry_search",
				mcp.WithDescription("Search the civil registry for entries matching a query"),
				mcp.WithString("query",
					mcp.Required(),
					mcp.Description("Free-text search query"),
				),
				mcp.WithNumber("page_size",
					mcp.Description("Maximum number of entries to return"),
				),
			),
			Group:        "registry",
			Risk:         registry.RiskRead,
			RequiresAuth: true,
			Handler:      deps.registrySearch,
		},
		{
			Tool: mcp.NewTool("registry_entry_get",
				mcp.WithDescription("Fetch a single civil registry entry by id"),
				mcp.WithString("entry_id",
					mcp.Required(),
					mcp.Description("Registry entry id"),
				),
			),
			Group:        "registry",
			Risk:         registry.RiskRead,
			RequiresAuth: true,
			Handler:      deps.registryEntryGet,
		},
		{
			Tool: mcp.NewTool("registry_entry_update",
				mcp.WithDescription("Update fields of a civil registry entry."+writeNote),
				mcp.WithString("entry_id",
					mcp.Required(),
					mcp.Description("Registry entry id"),
				),
				mcp.WithObject("fields",
					mcp.Required(),
					mcp.Description("Field names and new values"),
				),
			),
			Group:        "registry",
			Risk:         registry.RiskWrite,
			RequiresAuth: true,
			Handler:      deps.registryEntryUpdate,
		},
	}

	for _, descriptor := range descriptors {
		if err := deps.Registry.Register(descriptor); err != nil {
			return err
		}
	}
	return nil
}

func registerDocumentOps(deps Deps) error {
	descriptors := []registry.Descriptor{
		{
			Tool: mcp.NewTool("document_list",
				mcp.WithDescription("List documents, optionally filtered by category"),
				mcp.WithString("category",
					mcp.Description("Document category to filter by"),
				),
				mcp.WithString("page_token",
					mcp.Description("Continuation token from a previous page"),
				),
			),
			Group:        "documents",
			Risk:         registry.RiskRead,
			RequiresAuth: true,
			Handler:      deps.documentList,
		},
		{
			Tool: mcp.NewTool("document_get",
				mcp.WithDescription("Fetch a document by id"),
				mcp.WithString("document_id",
					mcp.Required(),
					mcp.Description("Document id"),
				),
			),
			Group:        "documents",
			Risk:         registry.RiskRead,
			RequiresAuth: true,
			Handler:      deps.documentGet,
		},
		{
			Tool: mcp.NewTool("document_submit",
				mcp.WithDescription("Submit a new document for processing."+writeNote),
				mcp.WithString("category",
					mcp.Required(),
					mcp.Description("Document category"),
				),
				mcp.WithObject("content",
					mcp.Required(),
					mcp.Description("Document content fields"),
				),
			),
			Group:        "documents",
			Risk:         registry.RiskWrite,
			RequiresAuth: true,
			Handler:      deps.documentSubmit,
		},
	}

	for _, descriptor := range descriptors {
		if err := deps.Registry.Register(descriptor); err != nil {
			return err
		}
	}
	return nil
}

func registerReportOps(deps Deps) error {
	descriptors := []registry.Descriptor{
		{
			Tool: mcp.NewTool("report_run",
				mcp.WithDescription("Start a report run and return its job id."+writeNote),
				mcp.WithString("report_id",
					mcp.Required(),
					mcp.Description("Report definition id"),
				),
				mcp.WithObject("parameters",
					mcp.Description("Report parameters"),
				),
			),
			Group:        "reports",
			Risk:         registry.RiskWrite,
			RequiresAuth: true,
			Handler:      deps.reportRun,
		},
		{
			Tool: mcp.NewTool("report_status",
				mcp.WithDescription("Check the status of a report run"),
				mcp.WithString("job_id",
					mcp.Required(),
					mcp.Description("Report job id"),
				),
			),
			Group:        "reports",
			Risk:         registry.RiskRead,
			RequiresAuth: true,
			Handler:      deps.reportStatus,
		},
	}

	for _, descriptor := range descriptors {
		if err := deps.Registry.Register(descriptor); err != nil {
			return err
		}
	}
	return nil
}

func (d Deps) registrySearch(ctx context.Context, args map[string]interface{}) (*registry.Result, error) {
	query, err := requiredString(args, "query")
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{"query": query}
	if size, ok := args["page_size"].(float64); ok {
		payload["pageSize"] = int(size)
	}
	return d.invokeService(ctx, "registry", "search", payload)
}

func (d Deps) registryEntryGet(ctx context.Context, args map[string]interface{}) (*registry.Result, error) {
	entryID, err := requiredString(args, "entry_id")
	if err != nil {
		return nil, err
	}
	return d.invokeService(ctx, "registry", "entry_get", map[string]interface{}{"entryId": entryID})
}

func (d Deps) registryEntryUpdate(ctx context.Context, args map[string]interface{}) (*registry.Result, error) {
	entryID, err := requiredString(args, "entry_id")
	if err != nil {
		return nil, err
	}
	fields := objectArg(args, "fields")
	if len(fields) == 0 {
		return nil, fmt.Errorf("fields parameter is required")
	}
	return d.invokeService(ctx, "registry", "entry_update", map[string]interface{}{
		"entryId": entryID,
		"fields":  fields,
	})
}

func (d Deps) documentList(ctx context.Context, args map[string]interface{}) (*registry.Result, error) {
	payload := map[string]interface{}{}
	if category := stringArg(args, "category"); category != "" {
		payload["category"] = category
	}
	if token := stringArg(args, "page_token"); token != "" {
		payload["pageToken"] = token
	}
	return d.invokeService(ctx, "documents", "list", payload)
}

func (d Deps) documentGet(ctx context.Context, args map[string]interface{}) (*registry.Result, error) {
	documentID, err := requiredString(args, "document_id")
	if err != nil {
		return nil, err
	}
	return d.invokeService(ctx, "documents", "get", map[string]interface{}{"documentId": documentID})
}

func (d Deps) documentSubmit(ctx context.Context, args map[string]interface{}) (*registry.Result, error) {
	category, err := requiredString(args, "category")
	if err != nil {
		return nil, err
	}
	content := objectArg(args, "content")
	if len(content) == 0 {
		return nil, fmt.Errorf("content parameter is required")
	}
	return d.invokeService(ctx, "documents", "submit", map[string]interface{}{
		"category": category,
		"content":  content,
	})
}

func (d Deps) reportRun(ctx context.Context, args map[string]interface{}) (*registry.Result, error) {
	reportID, err := requiredString(args, "report_id")
	if err != nil {
		return nil, err
	}
	payload := map[string]interface{}{"reportId": reportID}
	if parameters := objectArg(args, "parameters"); parameters != nil {
		payload["parameters"] = parameters
	}
	return d.invokeService(ctx, "reports", "run", payload)
}

func (d Deps) reportStatus(ctx context.Context, args map[string]interface{}) (*registry.Result, error) {
	jobID, err := requiredString(args, "job_id")
	if err != nil {
		return nil, err
	}
	return d.invokeService(ctx, "reports", "status", map[string]interface{}{"jobId": jobID})
}
