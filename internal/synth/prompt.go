package synth

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joshsymonds/mailrag/internal/extract"
)

// DefaultLanguage is the language answers are written in unless configured.
const DefaultLanguage = "English"

// Input is everything the grounding prompt embeds.
type Input struct {
	Question  string
	Folders   []string
	Documents []extract.Document
}

// BuildPrompt renders the grounding prompt. Document links are computed here
// and offered to the model as the only citations it may use.
func BuildPrompt(in Input, language string) string {
	if language == "" {
		language = DefaultLanguage
	}
	folders, _ := json.Marshal(nonNil(in.Folders))
	refs, _ := json.MarshalIndent(References(in.Documents), "", "  ")

	var emails strings.Builder
	for i, d := range in.Documents {
		if i > 0 {
			emails.WriteString("\n\n")
		}
		fmt.Fprintf(&emails, "<email id=\"%s\">\n    <index>%d</index>\n    <subject>%s</subject>\n    <from>%s</from>\n    <date>%s</date>\n    <body>\n        <![CDATA[%s]]>\n    </body>\n</email>",
			d.ID, i+1, d.Subject, d.From, d.Date, cdataSafe(d.Body))
	}

	return strings.NewReplacer(
		"{{language}}", language,
		"{{question}}", in.Question,
		"{{folders}}", string(folders),
		"{{emails}}", emails.String(),
		"{{references}}", string(refs),
	).Replace(groundingPrompt)
}

// References lists the citation for every document, in document order.
func References(docs []extract.Document) []SourceEmail {
	refs := make([]SourceEmail, 0, len(docs))
	for _, d := range docs {
		refs = append(refs, SourceEmail{Subject: d.Subject, Link: d.Link})
	}
	return refs
}

func cdataSafe(s string) string {
	return strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

const groundingPrompt = `<prompt>
    <role>
        You are a personal assistant that answers questions about the user's own mailbox. Answers must fit what the user actually asked and must be written in {{language}}.
    </role>

    <instructions>
        <rule id="1" importance="critical">
            Decide first whether the question is NARROW or BROAD. A narrow question asks for one item: the last message from someone, yesterday's email, a particular attachment. A broad question asks for an overview: what is new from my bank, a summary of a project thread.
        </rule>
        <rule id="2" importance="high">
            For a NARROW question, answer in detail about the single best matching email, then add at most one short sentence noting that other related emails exist. For a BROAD question, give short summaries of the two or three most relevant and recent emails. Never summarize every email.
        </rule>
        <rule id="3" importance="high">
            Use only what the emails in email_data say. Do not rely on outside knowledge.
        </rule>
        <rule id="4" importance="medium">
            If the emails do not contain the answer, say so plainly.
        </rule>
        <rule id="5" importance="high">
            Format the "answer" field with Markdown (bold, lists) and address the user directly as "you".
        </rule>
        <rule id="6" importance="critical">
            Your whole reply must be one valid JSON object that starts with { and ends with }. Escape quotes and newlines inside strings.
        </rule>
    </instructions>

    <output_format>
        <json_structure>
            {
              "answer": "...",
              "source_folders": [],
              "source_emails": []
            }
        </json_structure>
        <field_details>
            - answer: string, the full Markdown answer in {{language}}.
            - source_folders: array of strings, copied from analyzed_folders.
            - source_emails: array of {"subject", "link"} objects copied verbatim from source_references for the emails you used. Never invent a link.
        </field_details>
    </output_format>

    <context>
        <user_query>{{question}}</user_query>
        <analyzed_folders>{{folders}}</analyzed_folders>
        <email_data>{{emails}}</email_data>
        <source_references>{{references}}</source_references>
    </context>

    <task>
        Classify the question, draft the answer from the emails, then emit the JSON object and nothing else. Start immediately with {.
    </task>
</prompt>`
