package reconciler

// factSystemPrompt instructs the model to pull 1-3 durable facts from the
// latest user turn only, ignoring assistant/system content entirely.
const factSystemPrompt = `You are a memory extractor. From the latest user message, return 1-3 concise fact sentences grounded ONLY in what the user said.

Guidelines:
- If there is no meaningful fact, return [].
- Ignore assistant and system content completely.
- Facts must be short, readable sentences (e.g., "The user's wife is Anne.", "Planning a trip to Japan next spring.").
- Do not return acknowledgements, questions, or meta statements.
- Never output refusals like "I cannot..." or "I don't know...". If you can't extract a fact, return [].
- Respond with a JSON array of strings and nothing else.`

// updateMemoryPrompt is the reconciliation decision prompt: for each new
// fact, decide ADD, UPDATE, DELETE+ADD, or NONE against existing facts.
const updateMemoryPrompt = `You are a memory manager. For each new fact, decide: ADD, UPDATE an existing memory, DELETE a contradicted one, or NONE if it's an exact duplicate.

Operations:
1. ADD: the new fact is unrelated to all existing memories.
2. UPDATE: the new fact refines or corrects an existing memory on the same topic.
3. DELETE: the new fact explicitly contradicts an existing memory (emit DELETE for the old one, then ADD for the new text).
4. NONE: the new fact is an exact duplicate of an existing memory.

Critical rule: every new fact must result in ADD or UPDATE unless it is an exact duplicate. Unrelated facts always get ADD, never NONE.

Schema:
- {"event": "ADD", "text": "..."}
- {"event": "UPDATE", "id": <int>, "text": "..."}
- {"event": "DELETE", "id": <int>}
- {"event": "NONE"}

Respond with a JSON array of decisions only, no prose or code fences.`

// summaryPrompt drives the rolling conversation summary update.
const summaryPrompt = `You are a concise conversation summarizer. Update the running summary with the new facts.
Keep it brief, factual, and focused on durable information; do not restate transient chit-chat.
Prefer aggregating related facts into compact statements and dropping redundancies.
Respond with a JSON object: {"summary": "..."}`
