package summarize

import (
	"fmt"
	"strings"
)

// ContentType selects which prompt variant the map-reduce synthesis steps
// use. It only affects behavior at LevelMapReduce; LevelBrief always uses
// briefPrompt regardless of content type.
type ContentType string

const (
	ContentGeneral      ContentType = "general"
	ContentConversation ContentType = "conversation"
	ContentJournal      ContentType = "journal"
	ContentDocument     ContentType = "document"
)

const briefPrompt = "Summarize the following text in a single clear sentence. " +
	"Capture only the most important point; omit detail that isn't essential."

const chunkMapGeneral = "Summarize the following text chunk concisely, preserving key facts, names, and numbers. " +
	"Write %d-%d words."

const chunkMapConversation = "Summarize this portion of a conversation. Capture what was decided, requested, or " +
	"resolved, and who said what when it matters. Write %d-%d words."

const chunkMapJournal = "Summarize this journal excerpt. Capture events, feelings, and reflections the writer " +
	"recorded. Write %d-%d words."

const chunkMapDocument = "Summarize this document excerpt. Capture the main claims, findings, or instructions. " +
	"Write %d-%d words."

const reduceGeneral = "Combine the following summaries into one coherent summary, removing redundancy while " +
	"keeping every distinct fact. Write %d-%d words."

const reduceConversation = "Combine the following conversation summaries into one coherent summary of the whole " +
	"exchange: what was discussed, decided, and left open. Write %d-%d words."

const reduceJournal = "Combine the following journal summaries into one coherent narrative of events and " +
	"reflections in chronological order. Write %d-%d words."

const reduceDocument = "Combine the following document summaries into one coherent overview of the source " +
	"material's structure and claims. Write %d-%d words."

const finalSynthesisPrompt = "Produce a single final summary synthesizing all of the following section summaries " +
	"into one coherent whole. Do not just concatenate them; merge overlapping points and preserve the overall " +
	"narrative or argument order. Write %d-%d words."

// mapPromptForContentType returns the chunk-level map prompt for a content
// type, formatted to target [minWords,maxWords].
func mapPromptForContentType(ct ContentType, minWords, maxWords int) string {
	var tmpl string
	switch ct {
	case ContentConversation:
		tmpl = chunkMapConversation
	case ContentJournal:
		tmpl = chunkMapJournal
	case ContentDocument:
		tmpl = chunkMapDocument
	default:
		tmpl = chunkMapGeneral
	}
	return fmt.Sprintf(tmpl, minWords, maxWords)
}

// reducePromptForContentType returns the collapse-step combination prompt
// for a content type.
func reducePromptForContentType(ct ContentType, minWords, maxWords int) string {
	var tmpl string
	switch ct {
	case ContentConversation:
		tmpl = reduceConversation
	case ContentJournal:
		tmpl = reduceJournal
	case ContentDocument:
		tmpl = reduceDocument
	default:
		tmpl = reduceGeneral
	}
	return fmt.Sprintf(tmpl, minWords, maxWords)
}

func finalSynthesisPromptFor(minWords, maxWords int) string {
	return fmt.Sprintf(finalSynthesisPrompt, minWords, maxWords)
}

// formatPriorContext renders priorSummary as a "Context from earlier in the
// document" preamble, or "" when it is blank. The map phase does not call
// it: each chunk is summarized on its own.
func formatPriorContext(priorSummary string) string {
	if strings.TrimSpace(priorSummary) == "" {
		return ""
	}
	return "Context from earlier in the document:\n" + priorSummary + "\n\n"
}

// formatSummariesForMeta renders a list of summaries as a numbered list for
// a collapse or final-synthesis prompt.
func formatSummariesForMeta(summaries []string) string {
	var b strings.Builder
	for i, s := range summaries {
		fmt.Fprintf(&b, "Section %d:\n%s\n\n", i+1, s)
	}
	return b.String()
}
