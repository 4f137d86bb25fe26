package prompt

// builtinTemplates maps template name to content.
var builtinTemplates = map[string]string{
	"plan.md":        planTemplate,
	"create-file.md": createFileTemplate,
	"modify-file.md": modifyFileTemplate,
	"fix-file.md":    fixFileTemplate,
	"review.md":      reviewTemplate,
	"ci-fix.md":      ciFixTemplate,
	"pr-body.md":     prBodyTemplate,
}

const planTemplate = `# Plan File Changes

## Task
{{task}}

{{#if context}}
## Retrieved Project Context
{{context}}
{{/if}}

## Existing Project Files
{{file_listing}}

## Instructions
Produce a JSON plan of file-level changes that implement the task.
Prefer MODIFY over CREATE for any path that already exists in the listing.
Never plan changes to secrets, keys, or environment files.

Respond with ONLY a JSON object of this exact shape:
{
  "summary": "one-sentence description of the approach",
  "changes": [
    {"path": "relative/path.go", "action": "create|modify|delete", "description": "what to do in this file"}
  ]
}
`

const createFileTemplate = `# Create File: {{path}}

## Task
{{task}}

## This File
{{description}}

{{#if context}}
## Project Context
{{context}}
{{/if}}

## Instructions
Write the complete content of {{path}}.
Respond with ONLY the file content. No explanation, no markdown fences.
`

const modifyFileTemplate = `# Modify File: {{path}}

## Task
{{task}}

## Required Change
{{description}}

## Current Content
{{content}}

{{#if context}}
## Project Context
{{context}}
{{/if}}

## Instructions
Return the COMPLETE modified file. Keep every line that is unrelated to the
change. Respond with ONLY the full file content. No explanation, no
markdown fences, no omissions such as "rest of file unchanged".
`

const fixFileTemplate = `# Fix File: {{path}}

## Reported Problems
{{problems}}

## Current Content
{{content}}

## Instructions
Fix ONLY the reported problems. Return the COMPLETE corrected file.
Respond with ONLY the full file content. No explanation, no markdown
fences, no omissions.
`

const reviewTemplate = `# Code Review

## Task Being Implemented
{{task}}

## Diff Under Review
{{diff}}

## Instructions
Review the diff for correctness, safety, and fit with the task. Classify
every issue with a severity: critical (broken or dangerous), warning
(likely bug or misfit), suggestion (improvement), nitpick (style).

Respond with ONLY a JSON object of this exact shape:
{
  "approved": true,
  "assessment": "one-paragraph overall judgement",
  "issues": [
    {"file": "path.go", "line": 42, "severity": "warning", "message": "what is wrong", "fix": "optional suggested fix"}
  ]
}
Set "approved" to true only when no critical or warning issues remain.
`

const ciFixTemplate = `# Fix CI Failure: {{path}}

## Failure Class
{{kind}}

## CI Log Excerpt
{{logs}}

## Current Content
{{content}}

## Instructions
The CI run failed. Fix the problems the log shows in this file and return
the COMPLETE corrected file. Respond with ONLY the full file content. No
explanation, no markdown fences, no omissions.
`

const prBodyTemplate = `## Summary
{{summary}}

## Task
{{task}}

## Changes
{{changes}}

---
Opened automatically by taskpilot.
`
