package prompt

import "nlweb-orchestrator/pkg/registry"

const (
	PromptDecontextualize = "DecontextualizeQueryPrompt"
	PromptMemory          = "DetectMemoryRequestPrompt"
	PromptSiteRelevance   = "DetectIrrelevantQueryPrompt"
	PromptRequiredInfo    = "RequiredInfoPrompt"
	PromptAnalyzeQuery    = "AnalyzeQueryPrompt"
	PromptRanking         = "RankingPrompt"
	PromptSummarize       = "SummarizeResultsPrompt"
	PromptSynthesize      = "SynthesizeAnswerPrompt"
	PromptVerifyAnswer    = "VerifyAnswerPrompt"
)

func flagSchema(flag, text string) map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{flag},
		"properties": map[string]interface{}{
			flag: map[string]interface{}{"type": []interface{}{"boolean", "string"}},
			text: map[string]interface{}{"type": "string"},
		},
	}
}

// DefaultPrompts are the built-in templates; a registry file overrides them by name and type.
func DefaultPrompts() []registry.Prompt {
	return []registry.Prompt{
		{
			Name:     PromptDecontextualize,
			ItemType: RootType,
			Level:    "high",
			Template: "The user is searching {site.name} for {site.itemType} items. Their latest query is: {request.rawQuery}\n" +
				"Earlier queries in this conversation: {request.previousQueries}\n" +
				"Context the user is looking at: {request.contextDescription}\n" +
				"If the latest query only makes sense together with the earlier queries or the context, rewrite it " +
				"as a single standalone query. Otherwise return it unchanged and say no rewrite was required.",
			OutputSchema: map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"requires_decontextualization", "decontextualized_query"},
				"properties": map[string]interface{}{
					"requires_decontextualization": map[string]interface{}{"type": []interface{}{"boolean", "string"}},
					"decontextualized_query":       map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:     PromptMemory,
			ItemType: RootType,
			Level:    "low",
			Template: "Analyze this query to {site.name}: {request.rawQuery}\n" +
				"Is the user asking the system to remember something about them for later queries, " +
				"such as a preference or a constraint? If so, state the fact to remember in one short sentence.",
			OutputSchema: flagSchema("is_memory_request", "memory_request"),
		},
		{
			Name:     PromptMemory,
			ItemType: "Recipe",
			Level:    "low",
			Template: "Analyze this query to the recipe site {site.name}: {request.rawQuery}\n" +
				"Is the user stating a lasting dietary restriction, allergy, cuisine preference or kitchen constraint " +
				"that should apply to future recipe searches? If so, state it in one short sentence.",
			OutputSchema: flagSchema("is_memory_request", "memory_request"),
		},
		{
			Name:     PromptSiteRelevance,
			ItemType: RootType,
			Level:    "low",
			Template: "The site {site.name} contains {site.itemType} items. The user asked: {request.query}\n" +
				"Is this site clearly the wrong place to look for an answer? Only say it is irrelevant when no " +
				"{site.itemType} item could plausibly help, and explain why in one sentence addressed to the user.",
			OutputSchema: flagSchema("site_is_irrelevant_to_query", "explanation_for_irrelevance"),
		},
		{
			Name:     PromptRequiredInfo,
			ItemType: "RealEstateListing",
			Level:    "low",
			Template: "The user is searching real estate listings with the query: {request.query}\n" +
				"Facts they asked us to remember: {request.memory}\n" +
				"A useful search needs at least a location (city, neighborhood or zip code). If that is missing, " +
				"write one short question asking the user for it.",
			OutputSchema: flagSchema("required_info_found", "user_question"),
		},
		{
			Name:     PromptRequiredInfo,
			ItemType: "LocalBusiness",
			Level:    "low",
			Template: "The user is looking for {site.itemType} items with the query: {request.query}\n" +
				"Facts they asked us to remember: {request.memory}\n" +
				"A useful answer needs to know roughly where the user is. If no location is given, " +
				"write one short question asking for it.",
			OutputSchema: flagSchema("required_info_found", "user_question"),
		},
		{
			Name:     PromptAnalyzeQuery,
			ItemType: RootType,
			Level:    "low",
			Template: "Classify this query to {site.name}: {request.query}\n" +
				"Give the schema.org type of the items the user wants and a short label for the kind of request " +
				"(for example search, comparison, detail, recommendation).",
			OutputSchema: map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"item_type", "query_type"},
				"properties": map[string]interface{}{
					"item_type":  map[string]interface{}{"type": "string"},
					"query_type": map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:     PromptRanking,
			ItemType: RootType,
			Level:    "low",
			Template: "Assign a score between 0 and 100 to the following {site.itemType} based on how relevant it is " +
				"to the user's question. Use your knowledge of the domain.\n" +
				"The user's question is: {request.query}\n" +
				"Facts the user asked us to remember: {request.memory}\n" +
				"The item's description is: {item.description}\n" +
				"Also give a short description of the item that explains why it is relevant. The description " +
				"must not repeat the question and must not mention the score.",
			OutputSchema: map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"score", "description"},
				"properties": map[string]interface{}{
					"score":       map[string]interface{}{"type": []interface{}{"integer", "number", "string"}},
					"description": map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:     PromptSummarize,
			ItemType: RootType,
			Level:    "high",
			Template: "Summarize the following {site.itemType} results for the question: {request.query}\n" +
				"Results:\n{items}\n" +
				"Write two or three sentences that help the user choose among them.",
			OutputSchema: map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"summary"},
				"properties": map[string]interface{}{
					"summary": map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:     PromptSynthesize,
			ItemType: RootType,
			Level:    "high",
			Template: "Answer the user's question using only the items below.\n" +
				"Question: {request.query}\n" +
				"Items:\n{items}\n" +
				"Reviewer feedback on a previous draft: {feedback}\n" +
				"Return the answer and the urls of the items it relies on.",
			OutputSchema: map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"answer"},
				"properties": map[string]interface{}{
					"answer": map[string]interface{}{"type": "string"},
					"urls": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"type": "string"},
					},
				},
			},
		},
		{
			Name:     PromptVerifyAnswer,
			ItemType: RootType,
			Level:    "low",
			Template: "Question: {request.query}\n" +
				"Items:\n{items}\n" +
				"Draft answer: {answer}\n" +
				"Is every claim in the draft supported by the items? If not, list the unsupported claims.",
			OutputSchema: flagSchema("supported", "unsupported_claims"),
		},
	}
}
