package mcpserver

// CatalogFormatContract describes the catalog entry file format that LLM
// consumers should follow when adding entries.
const CatalogFormatContract = `# Memewatch Catalog Format Contract

Every catalog entry is one Markdown file in the catalog directory.

## Structure

` + "```" + `markdown
---
id: distracted-bf                   # OPTIONAL – defaults to the file name stem
name: Distracted Boyfriend          # OPTIONAL – defaults to the first H1, then the id
keywords:                           # REQUIRED – entries without keywords never match
  - distracted
  - boyfriend
media: distracted-bf.mp4            # OPTIONAL – media the overlay plays on detection
---

# Distracted Boyfriend

Free-form notes about the meme.
` + "```" + `

## Rules

1. **YAML frontmatter comes first.** The ` + "`" + `---` + "`" + ` fences must open the file.
2. **Keywords match case-insensitively** against the visible page text and live
   input values. A keyword may be a phrase (` + "`" + `this is fine` + "`" + `) or contain
   symbols (` + "`" + `(╯°□°)╯` + "`" + `); it is matched literally, surrounding spaces
   included. Quote a padded keyword (` + "`" + `" cat "` + "`" + `) to match it only as a whole
   word; it then does not match ` + "`" + `catalog` + "`" + `.
3. **IDs are unique.** When two files declare the same id, the first file in path
   order wins and the other is ignored.
4. **Invalid frontmatter** makes the file invisible to detectors; fix it and the
   entry reappears on the next catalog refresh.
5. **File names** end with ` + "`" + `.md` + "`" + `, use lowercase kebab-case, and may be nested
   in folders.

## Scoring

- ` + "`" + `frequency` + "`" + ` (default): every keyword occurrence adds 1.
- ` + "`" + `presence` + "`" + `: each distinct keyword found adds 1.
- ` + "`" + `similarity` + "`" + `: fuzzy token match; near-misses above the threshold count.

The highest score wins; ties go to the entry listed first.
`
