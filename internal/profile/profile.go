// Package profile holds the portfolio content: the biography used as the
// question-answering context and the fixed output of the built-in commands.
package profile

import (
	_ "embed"
	"strings"
	"sync"

	"github.com/russross/blackfriday/v2"
)

//go:embed biography.md
var biographyMarkdown []byte

var (
	biography     string
	biographyOnce sync.Once
)

// Biography returns the embedded biography as plain text. The result is
// computed once and shared.
func Biography() string {
	biographyOnce.Do(func() {
		biography = PlainText(biographyMarkdown)
	})
	return biography
}

// PlainText flattens markdown into one line per paragraph, heading or list
// item. Headings end with a colon and start a new block; links keep their
// destination so URLs stay answerable.
func PlainText(markdown []byte) string {
	doc := blackfriday.New(blackfriday.WithExtensions(blackfriday.CommonExtensions)).Parse(markdown)

	var out, line strings.Builder
	flush := func() {
		if s := strings.TrimSpace(line.String()); s != "" {
			out.WriteString(s)
			out.WriteByte('\n')
		}
		line.Reset()
	}

	var linkStart []int
	doc.Walk(func(n *blackfriday.Node, entering bool) blackfriday.WalkStatus {
		switch n.Type {
		case blackfriday.Text, blackfriday.Code:
			line.Write(n.Literal)
		case blackfriday.Softbreak, blackfriday.Hardbreak:
			line.WriteByte(' ')
		case blackfriday.CodeBlock:
			flush()
			for _, l := range strings.Split(string(n.Literal), "\n") {
				line.WriteString(l)
				flush()
			}
		case blackfriday.Heading:
			if entering {
				flush()
				if out.Len() > 0 {
					out.WriteByte('\n')
				}
				return blackfriday.GoToNext
			}
			line.WriteByte(':')
			flush()
		case blackfriday.Item:
			flush()
			if entering {
				line.WriteString("- ")
			}
		case blackfriday.Paragraph, blackfriday.TableRow:
			if !entering {
				flush()
			}
		case blackfriday.TableCell:
			if !entering {
				line.WriteByte(' ')
			}
		case blackfriday.Link:
			if entering {
				linkStart = append(linkStart, line.Len())
				return blackfriday.GoToNext
			}
			start := linkStart[len(linkStart)-1]
			linkStart = linkStart[:len(linkStart)-1]
			dest := string(n.LinkData.Destination)
			if text := line.String()[start:]; dest != "" && text != dest && "mailto:"+text != dest {
				line.WriteString(" (" + dest + ")")
			}
		case blackfriday.HTMLBlock, blackfriday.HTMLSpan, blackfriday.Image:
			return blackfriday.SkipChildren
		}
		return blackfriday.GoToNext
	})
	flush()

	return strings.TrimRight(out.String(), "\n")
}

// Welcome is printed once when the terminal starts.
func Welcome() []string {
	return []string{
		"🚀 Kenneth's AI-Powered Terminal",
		`Type "help" for commands or ask me anything!`,
		"",
	}
}

func Help() []string {
	return []string{
		"Available commands:",
		"  help       - Show this help",
		"  clear      - Clear screen",
		"  about      - About Kenneth",
		"  skills     - Technical skills",
		"  experience - Work experience",
		"  projects   - Current projects",
		"",
		"Or ask me anything about Kenneth!",
	}
}

func About() []string {
	return []string{
		"Kenneth Sanchez - Software Development Engineer II",
		"Currently: AWS Q Developer CLI - Agentic AI",
		"Location: Bellevue, Washington",
		"Specialization: Automated code manipulation & language parsing",
		"Focus: LLMs and semantic context for agentic AI systems",
	}
}

func Skills() []string {
	return []string{
		"Technical Skills:",
		"• Languages: C#, C++, Java, JavaScript, TypeScript",
		"• Cloud: AWS Lambda, CloudFront, serverless architecture",
		"• Frontend: Angular, React, HTML5, micro frontends",
		"• Backend: .NET MVC, RESTful APIs, code analysis tools",
	}
}

func Experience() []string {
	return []string{
		"Professional Experience:",
		"AWS Q Developer CLI (2023-Present) - SDE II",
		"  • Working on Agentic AI for developer tools",
		"Amazon Alexa Shopping (2022-2023) - SDE II",
		"Microsoft Edge Browser (2021-2022) - SWE II",
		"  • Improved enterprise results load time from 1min to 3sec",
		"Amazon Seller Services (2019-2021) - SDE II",
		"  • Created scalable solutions for Sellers & Associates",
		"  • Built AWS Lambda & CloudFront micro frontends",
		"Mobilize.Net (2012-2019) - Senior Software Engineer",
		"  • Led HTML5 migration projects and automated tools",
	}
}

func Projects() []string {
	return []string{
		"Key Projects & Achievements:",
		"• AWS Q Developer CLI - Agentic AI development",
		"• Automated code migration and analysis tools",
		"• Microsoft Edge enterprise search optimization",
		"• Serverless solutions with AWS Lambda & CloudFront",
		"• NLP/ML search engine for Wiki article parsing",
	}
}
