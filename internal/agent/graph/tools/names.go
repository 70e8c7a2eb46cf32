// Package tools is the dispatch table of functions the model may call during a turn.
// Each tool decodes its own typed input and returns result text plus a new state snapshot.
package tools

const (
	ToolSearchKnowledgeBase = "search_knowledge_base"
	ToolProposeChecklist    = "propose_checklist"
	ToolSearchMaterials     = "search_materials"
	ToolAddItems            = "add_items"
	ToolRemoveItems         = "remove_items"
	ToolSetLabor            = "set_labor"
	ToolSetMarkup           = "set_markup"
	ToolSetQuoteInfo        = "set_quote_info"
	ToolGetSummary          = "get_summary"
	ToolFinalizeQuote       = "finalize_quote"
)
