package core

import "fmt"

// DefaultPersonaName is the name the response model speaks as.
const DefaultPersonaName = "Hibiki"

// PlanningTemplate is the template for the guidance prompt.
//
// Arguments: utterance, retrieved memory.
const PlanningTemplate = `# Task
Based on the user's message and the related memories, produce the following:

1. The addressing style to use with the user
2. The past memories to draw on (summarized)
3. Instructions for the response model

# User Message
%s

# Related Memories
%s`

// PersonaTemplate is the template for the persona system prompt.
//
// Arguments: persona name.
const PersonaTemplate = `You are an AI named "%s". Keep the following personality consistently:
- Speak gently and with care
- Remember the user's moods and preferences and use them naturally in conversation
- Gently bring up and connect past topics
- Stay close to the user's worries and anxieties
- Do not force encouragement; match the present moment`

// ResponseTemplate is the template for the response prompt.
//
// Arguments: guidance, retrieved memory, utterance, persona name.
const ResponseTemplate = `# Instructions
%s

# Memories
%s

# User Message
%s

# %s's Reply`

// GreetingTemplate is the opening line of a new conversation.
//
// Arguments: user display name.
const GreetingTemplate = "Hello, %s. How are you feeling today?"

// buildPlanningPrompt builds the guidance prompt. Both values are embedded verbatim.
func buildPlanningPrompt(utterance, retrievedMemory string) string {
	return fmt.Sprintf(PlanningTemplate, utterance, retrievedMemory)
}

// buildPersonaPrompt builds the persona system prompt.
func buildPersonaPrompt(personaName string) string {
	return fmt.Sprintf(PersonaTemplate, personaName)
}

// buildResponsePrompt builds the response prompt. All values are embedded verbatim.
func buildResponsePrompt(guidance, retrievedMemory, utterance, personaName string) string {
	return fmt.Sprintf(ResponseTemplate, guidance, retrievedMemory, utterance, personaName)
}

// formatMemoryContent renders the exchange persisted after a reply.
func formatMemoryContent(utterance, reply string) string {
	return "user: " + utterance + "\nagent: " + reply
}
