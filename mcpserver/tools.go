package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

func searchTool() mcp.Tool {
	return mcp.NewTool("search",
		mcp.WithDescription("Search the document store for documents relevant to a query. Returns id, title, a text snippet and url for each hit."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results to return (default: 10, max: 50)"),
		),
	)
}

func fetchTool() mcp.Tool {
	return mcp.NewTool("fetch",
		mcp.WithDescription("Retrieve the complete content of a document by ID for analysis and citation"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Document ID as returned by search"),
		),
	)
}

func askTool() mcp.Tool {
	return mcp.NewTool("ask",
		mcp.WithDescription("Answer a question from the stored documents, falling back across model providers"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithBoolean("allow_web_search",
			mcp.Description("Allow the model to search the web (default: false)"),
		),
		mcp.WithString("conversation_id",
			mcp.Description("Conversation to continue"),
		),
	)
}
