// Package document renders tailored CVs and cover letters as DOCX files.
package document

import (
	"archive/zip"
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nguyenthenguyen/docx"
	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/logger"
	"github.com/spigell/job-agent/internal/profile"
)

//go:embed all:templates
var templates embed.FS

const (
	cvTemplate          = "templates/cv.xml"
	coverLetterTemplate = "templates/cover_letter.xml"
	packageRoot         = "templates/package"

	// bodyMarker is the template paragraph replaced with the generated content.
	bodyMarker = "<w:p><w:r><w:t>{{BODY}}</w:t></w:r></w:p>"

	defaultName = "Candidate Name"
	dateLayout  = "January 2, 2006"
)

// Builder writes DOCX documents from the embedded templates.
type Builder struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewBuilder(l *zap.Logger) *Builder {
	return &Builder{logger: logger.Component(l, "document"), now: time.Now}
}

// CV renders p as a CV at path.
func (b *Builder) CV(p *profile.Profile, path string) error {
	if p == nil {
		return errors.New("profile is required")
	}
	return b.render(cvTemplate, path, p.PersonalInfo, cvBody(p), nil)
}

// CoverLetter renders letter with the contact header of p at path. Every
// non-empty line of letter becomes a paragraph.
func (b *Builder) CoverLetter(letter string, p *profile.Profile, path string) error {
	if strings.TrimSpace(letter) == "" {
		return errors.New("cover letter is empty")
	}
	var info profile.PersonalInfo
	if p != nil {
		info = p.PersonalInfo
	}

	var content body
	for _, line := range strings.Split(letter, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			content.add(text(line)).after = 240
		}
	}

	return b.render(coverLetterTemplate, path, info, &content, map[string]string{
		"{{DATE}}": b.now().Format(dateLayout),
	})
}

func (b *Builder) render(template, path string, info profile.PersonalInfo, content *body, extra map[string]string) error {
	pkg, err := buildPackage(template)
	if err != nil {
		return fmt.Errorf("build %s: %w", template, err)
	}

	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(pkg), int64(len(pkg)))
	if err != nil {
		return fmt.Errorf("read %s: %w", template, err)
	}
	defer doc.Close()

	name := strings.TrimSpace(info.Name)
	if name == "" {
		name = defaultName
	}

	replacements := map[string]string{
		"{{NAME}}":     name,
		"{{HEADLINE}}": strings.TrimSpace(info.Headline),
		"{{CONTACT}}":  info.Contact(),
	}
	for k, v := range extra {
		replacements[k] = v
	}

	editable := doc.Editable()
	for placeholder, value := range replacements {
		if err := editable.Replace(placeholder, value, -1); err != nil {
			return fmt.Errorf("replace %s: %w", placeholder, err)
		}
	}
	editable.ReplaceRaw(bodyMarker, content.xml(), 1)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := editable.WriteToFile(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	b.logger.Info("document saved", zap.String("path", path))
	return nil
}

// buildPackage zips the shared package parts together with the given
// template as word/document.xml.
func buildPackage(template string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	add := func(name string, data []byte) error {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	err := fs.WalkDir(templates, packageRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := templates.ReadFile(p)
		if err != nil {
			return err
		}
		return add(strings.TrimPrefix(p, packageRoot+"/"), data)
	})
	if err != nil {
		return nil, err
	}

	mainPart, err := templates.ReadFile(template)
	if err != nil {
		return nil, err
	}
	if err := add("word/document.xml", mainPart); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cvBody(p *profile.Profile) *body {
	var content body

	if summary := strings.TrimSpace(p.Summary); summary != "" {
		content.section("PROFESSIONAL SUMMARY")
		content.add(text(summary))
	}

	if p.Skills.Len() > 0 {
		content.section("CORE SKILLS")
		if categories := p.Skills.Categories(); len(categories) > 0 {
			for _, category := range categories {
				skills := p.Skills.ByCategory[category]
				if len(skills) == 0 {
					continue
				}
				content.add(bold(category+": "), text(strings.Join(skills, ", ")))
			}
		}
		if len(p.Skills.List) > 0 {
			content.add(text(strings.Join(p.Skills.List, ", ")))
		}
	}

	if len(p.Experience) > 0 {
		content.section("PROFESSIONAL EXPERIENCE")
		for _, exp := range p.Experience {
			header := content.add(bold(exp.Company))
			header.before = 160
			if exp.Location != "" {
				header.runs = append(header.runs, text(" | "+exp.Location))
			}

			role := content.add(italic(exp.Title))
			if exp.Dates != "" {
				role.runs = append(role.runs, text(" | "+exp.Dates))
			}
			role.after = 40

			for _, item := range exp.Highlights() {
				content.bullet(item)
			}
		}
	}

	if len(p.Education) > 0 {
		content.section("EDUCATION")
		for _, edu := range p.Education {
			degree := strings.TrimSpace(strings.Join([]string{edu.Degree, edu.Field}, " "))
			line := content.add(bold(edu.School))
			if degree != "" {
				if edu.School != "" {
					degree = " | " + degree
				}
				line.runs = append(line.runs, text(degree))
			}
			if edu.Year != "" {
				line.runs = append(line.runs, text(" ("+edu.Year+")"))
			}
		}
	}

	if len(p.Projects) > 0 {
		content.section("PROJECTS")
		for _, project := range p.Projects {
			line := content.add(bold(project.Name))
			if project.Description != "" {
				line.runs = append(line.runs, text(": "+project.Description))
			}
		}
	}

	return &content
}

var (
	unsafeFileChars = strings.NewReplacer(
		"<", "", ">", "", ":", "", `"`, "", "/", "", `\`, "", "|", "", "?", "", "*", "", "%", "",
	)
	dotRuns = regexp.MustCompile(`\.{2,}`)
)

// NewRunID returns an identifier for one application run.
func NewRunID() string {
	return uuid.NewString()
}

// FileNames returns the CV and cover letter file names for an application.
// The first eight characters of runID keep names of repeated runs apart.
func FileNames(company, role, runID string) (cv, coverLetter string) {
	id := strings.ReplaceAll(runID, "-", "")
	if id == "" {
		id = strings.ReplaceAll(NewRunID(), "-", "")
	}
	if len(id) > 8 {
		id = id[:8]
	}

	stem := sanitize(company, "Company") + "_" + sanitize(role, "Job") + "_" + id
	return "CV_" + stem + ".docx", "CL_" + stem + ".docx"
}

func sanitize(name, fallback string) string {
	name = dotRuns.ReplaceAllString(unsafeFileChars.Replace(name), ".")
	name = strings.Join(strings.Fields(name), "_")
	if name == "" {
		return fallback
	}
	return name
}
