package session

// defaultSystemPrompt is the system prompt every new Engine is constructed
// with. Grounded directly in spec.md §1's description of the runtime
// itself, since the spec's explicit non-goals exclude any particular
// provider's prompt wording.
const defaultSystemPrompt = "You are an autonomous tool-using agent. You are given a user instruction " +
	"and a sandboxed workspace. Work step by step: call at most one tool per turn, inspect its result, " +
	"and continue until the instruction is fully satisfied. When finished, call complete_task with a " +
	"final answer. Never claim an action succeeded unless a tool result confirms it."

// enhancePromptMeta is the fixed meta-prompt spec.md §4.7's enhance_prompt
// handler uses to rewrite a user's draft into a more detailed instruction.
const enhancePromptMeta = "Rewrite the user's draft instruction below into a clear, detailed prompt for " +
	"an autonomous coding and research agent. Preserve the original intent exactly; add concrete " +
	"acceptance criteria and call out any ambiguity the draft leaves open. Respond with only the " +
	"rewritten prompt, no preamble."
