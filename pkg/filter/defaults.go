package filter

// baseDefaults are never content
var baseDefaults = []string{
	"script",
	"style",
	"noscript",
	"template",
	"svg",
	"iframe",
}

var documentationDefaults = []string{
	// navigation
	"nav",
	"#nav",
	"#navigation",
	"#navigation-items",
	".navigation",
	".navbar",
	".nav-menu",
	".menu",
	".mobile-nav",
	".page-navigation",
	".pagination-nav",
	"[role='navigation']",

	// sidebars
	"#sidebar",
	".sidebar",
	".docs-sidebar",
	".sidebar-container",
	"[data-testid='sidebar']",

	// header and footer
	"body > header",
	"footer",
	"#header",
	"#footer",
	".site-header",
	".site-footer",
	".page-footer",
	"[role='banner']",
	"[role='contentinfo']",

	// table of contents and breadcrumbs
	"#toc",
	".toc",
	".table-of-contents",
	".on-this-page",
	".breadcrumb",
	".breadcrumbs",
	"[aria-label='breadcrumb']",

	// comments and feedback widgets
	"#comments",
	".comments",
	".comment-section",
	".feedback",
	".was-this-helpful",
	".edit-this-page",

	// skip links and assorted chrome
	".skip-link",
	".skip-to-content",
	".cookie-banner",
	".announcement-bar",
	".search-bar",
	".theme-toggle",
}

// BaseDefaults returns the selectors applied to every crawl
func BaseDefaults() []string {
	return append([]string(nil), baseDefaults...)
}

// DocumentationDefaults returns the selectors merged in for documentation
// sites: navigation, sidebars, header/footer, TOC, breadcrumbs, comments
func DocumentationDefaults() []string {
	return append([]string(nil), documentationDefaults...)
}
