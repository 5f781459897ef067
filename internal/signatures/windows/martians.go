package windows

import (
	"regexp"

	"github.com/bartblaze/community/internal/processtree"
	"github.com/bartblaze/community/internal/signatures"
	"github.com/bartblaze/community/pkg/models"
)

var ieRecognizer = regexp.MustCompile(`(?i)^c:\\program files(?:\s\(x86\))?\\internet explorer\\iexplore\.exe$`)

// Programs Internet Explorer legitimately spawns. Paths are tight on purpose
// to keep 32-bit and 64-bit locations apart.
var ieWhitelist = compileAll(
	`^c:\\program files(?:\s\(x86\))?\\adobe\\reader \d+\.\d+\\reader\\acrord32\.exe$`,
	`^c:\\program files(?:\s\(x86\))?\\java\\jre\d+\\bin\\j(?:avaw?|p2launcher)\.exe$`,
	`^c:\\program files(?:\s\(x86\))?\\microsoft silverlight\\(?:\d+\.)+\d\\agcp\.exe$`,
	`^c:\\windows\\system32\\ntvdm\.exe$`,
	`^c:\\windows\\system32\\rundll32\.exe$`,
	`^c:\\windows\\syswow64\\rundll32\.exe$`,
	`^c:\\windows\\system32\\drwtsn32\.exe$`,
	`^c:\\windows\\syswow64\\drwtsn32\.exe$`,
	`^c:\\windows\\system32\\dwwin\.exe$`,
	`^c:\\windows\\system32\\werfault\.exe$`,
	`^c:\\windows\\syswow64\\werfault\.exe$`,
)

var ieWalker = processtree.NewWalker(ieRecognizer, ieWhitelist)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		out[i] = regexp.MustCompile("(?i)" + expr)
	}
	return out
}

func martiansIEDefinition() *signatures.Definition {
	meta := &models.SignatureMeta{
		Name:        "ie_martian_children",
		Description: "Martian Subprocess Started By IE",
		Severity:    models.SeverityMedium,
		Categories:  []string{"martians"},
		Authors:     []string{"Will Metcalf"},
		Minimum:     "0.5",
		TTPs:        []string{"T1059"},
		MBCs:        []string{"OB0009", "E1059"},
	}
	return signatures.NewBatchDefinition(meta, func() signatures.Batch {
		return signatures.BatchFunc(runMartiansIE)
	})
}

// runMartiansIE reports every unexpected descendant of Internet Explorer.
// File submissions never launch the browser as entry point, so they are skipped.
func runMartiansIE(ec *signatures.Context) (bool, error) {
	report := ec.Report()
	if report.TargetCategory() == models.CategoryFile {
		return false, nil
	}

	for _, martian := range ieWalker.FindMartians(report.ProcessTree()) {
		ec.AddData("ie_martian", martian.ModulePath)
	}
	return ec.HasData(), nil
}
