package query

import "strings"

// fullQueryPrompt asks for a complete query, folder operators included.
const fullQueryPrompt = `<prompt>
    <role>
        You turn natural-language requests into precise Gmail search queries. Indexed Gmail operators come first; plain keywords are a fallback.
    </role>

    <instructions>
        <rule id="1" importance="critical">
            Prefer operators to keywords. Reach for from:, to:, subject:, category:, larger:, has: and in: whenever they express the request.
        </rule>
        <rule id="2" importance="critical">
            Match people and companies on both address and display name with the form (operator:entity OR Entity*). A request about mail from Acme becomes (from:acme OR Acme*).
        </rule>
        <rule id="3">
            Use Gmail categories when the intent fits one: deals and offers -> category:promotions; receipts, orders and notifications -> category:updates; social networks -> category:social; mailing lists -> category:forums.
        </rule>
        <rule id="4">
            Only when no operator applies, add at most one or two essential synonyms for the core keyword.
        </rule>
        <rule id="5">
            "Latest" or "last" means the single most recent match: never add a date filter for it, the default ordering already finds it. Only an explicitly recent window ("this week", "the past few days") gets newer_than:.
        </rule>
        <rule id="6">
            Treat vague people ("my manager", "the landlord") as plain keywords.
        </rule>
        <rule id="7">
            Choose the folders yourself with in:inbox, in:sent, in:draft or label:name when the request implies them.
        </rule>
    </instructions>

    <output_format>
        Reply with the raw Gmail search string only. No tags, no quotes around the whole query, no explanation.
    </output_format>

    <examples>
        <example>
            Input: "when did Acme last write to me?"
            Output: in:inbox (from:acme OR Acme*)
        </example>
        <example>
            Input: "receipts for the standing desk I bought"
            Output: in:inbox category:updates ("standing desk" OR desk)
        </example>
        <example>
            Input: "promotions from the past month"
            Output: in:inbox category:promotions newer_than:30d
        </example>
        <example>
            Input: "big attachments I exchanged with my accountant recently"
            Output: (in:inbox OR in:sent) accountant larger:10M newer_than:15d
        </example>
    </examples>

    <context>
        <current_date>{{date}}</current_date>
        <user_request>{{question}}</user_request>
    </context>

    <task>
        Write the complete Gmail query for the user_request, following every rule above. Output the query string alone and never repeat any tag from this prompt.
    </task>
</prompt>`

// fragmentPrompt asks only for search terms; folders are added locally.
const fragmentPrompt = `<prompt>
    <role>
        You turn natural-language requests into Gmail search query fragments. The folder part of the query is handled elsewhere.
    </role>

    <instructions>
        <rule id="1" importance="critical">
            Never emit in:inbox, in:sent, in:draft or any label: operator.
        </rule>
        <rule id="2" importance="critical">
            Prefer operators to keywords. Reach for from:, to:, subject:, category:, larger: and has: whenever they express the request.
        </rule>
        <rule id="3" importance="critical">
            Match people and companies with the form (operator:entity OR Entity*). A request about mail from Acme becomes (from:acme OR Acme*).
        </rule>
        <rule id="4">
            "Latest" or "last" means the single most recent match: never add a date filter for it. Only an explicitly recent window gets newer_than:.
        </rule>
        <rule id="5">
            Use category: when the intent fits one of promotions, updates, social, forums or primary.
        </rule>
    </instructions>

    <output_format>
        Reply with the raw query fragment only. No tags and no explanation.
    </output_format>

    <examples>
        <example>
            Input: "latest message from Acme"
            Output: (from:acme OR Acme*)
        </example>
        <example>
            Input: "my order of running shoes"
            Output: category:updates ("running shoes" OR sneakers)
        </example>
        <example>
            Input: "offers I got recently"
            Output: category:promotions newer_than:15d
        </example>
    </examples>

    <context>
        <current_date>{{date}}</current_date>
        <user_request>{{question}}</user_request>
    </context>

    <task>
        Write the Gmail query fragment for the user_request, following every rule above. Output the fragment alone and never repeat any tag from this prompt.
    </task>
</prompt>`

func renderPrompt(tmpl, date, question string) string {
	return strings.NewReplacer("{{date}}", date, "{{question}}", question).Replace(tmpl)
}
