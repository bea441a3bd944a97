package browser

// snapshotResult is the decoded output of snapshotScript
type snapshotResult struct {
	Refs    []string `json:"refs"`
	Lines   []string `json:"lines"`
	Content string   `json:"content"`
}

// snapshotScript annotates visible interactive elements with reference
// tokens in a single round trip. Numbering restarts at @1 on every call
// so an unchanged page always produces the same tree.
const snapshotScript = `(interactiveOnly) => {
	const selector = 'a, button, input, select, textarea, [role="button"], [role="link"], [role="checkbox"], [role="tab"], [onclick], [contenteditable="true"]';
	const maxElements = 200;
	const maxContent = 15000;

	// Drop markers from the previous snapshot
	document.querySelectorAll('[data-webpilot-ref]').forEach(el => el.removeAttribute('data-webpilot-ref'));

	const nodeList = document.querySelectorAll(selector);
	const refs = [];
	const lines = [];
	let n = 0;

	for (let i = 0; i < nodeList.length && refs.length < maxElements; i++) {
		const el = nodeList[i];

		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		const visible = rect.width > 0 && rect.height > 0 &&
			style.display !== 'none' && style.visibility !== 'hidden';
		if (!visible) continue;

		let label = '';
		try {
			label = (el.textContent || '').trim();
			if (label.length > 100) label = '';
		} catch (e) {}

		if (!label) {
			label = el.getAttribute('aria-label') ||
				el.getAttribute('title') ||
				el.getAttribute('placeholder') ||
				el.getAttribute('name') ||
				el.getAttribute('alt') ||
				el.getAttribute('value') ||
				(el.id ? '#' + el.id : '') || '';
		}
		label = (label || '').substring(0, 80).replace(/[\n\t]+/g, ' ').trim();

		n++;
		const ref = '@' + n;
		el.setAttribute('data-webpilot-ref', ref);
		refs.push(ref);
		lines.push(ref + ' <' + el.tagName.toLowerCase() + '> "' + label + '"');
	}

	let content = '';
	if (!interactiveOnly) {
		content = ((document.body && document.body.innerText) || '').substring(0, maxContent);
	}

	return { refs: refs, lines: lines, content: content };
}`
