package mcpserver

// HashtagContract describes how tag descriptions reference other tags. LLM
// consumers should read it before creating or updating tags.
const HashtagContract = `# logtags Hashtag Contract

A tag has a unique name, a free-text description and an optional metadata
object. Hashtags written in the description link the tag to other tags.

## Forms

- ` + "`" + `#name` + "`" + ` : a run of characters up to the next whitespace or brace.
  ` + "`" + `#node.js` + "`" + ` references "node.js".
- ` + "`" + `#{multi word name}` + "`" + ` : everything between the braces, trimmed.
  ` + "`" + `#{rock climbing}` + "`" + ` references "rock climbing".

## Rules

1. Names are case-sensitive and may use any script (` + "`" + `#写真` + "`" + `, ` + "`" + `#{зимняя рыбалка}` + "`" + `).
2. A name referenced twice counts once; its first appearance sets its position.
3. Referenced tags that do not exist are created with an empty description.
4. A tag never links to itself.
5. Every update replaces the tag's links with exactly the hashtags in the new
   description, in order of appearance.
6. Names are at most 255 characters; longer references are ignored.

## Example

` + "```" + `text
Weekend trips to the coast. Mostly #fishing, sometimes #{sea kayaking}.
Gear list lives in #{fishing gear}.
` + "```" + `

Links, in order: fishing, sea kayaking, fishing gear.
`
