// internal/browser/scripts.go
package browser

// collectElementsScript walks the DOM for interactive elements and returns
// them as a JSON array. Each entry carries a stable index, a generated CSS
// selector, geometry and visibility so the engine can reason about the page
// without further round trips.
const collectElementsScript = `
(() => {
	const interactiveTags = new Set(['a', 'button', 'input', 'select', 'textarea', 'summary']);
	const results = [];

	const isVisible = (el) => {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') {
			return false;
		}
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};

	const isClickable = (el) => {
		if (el.disabled) return false;
		const tag = el.tagName.toLowerCase();
		if (interactiveTags.has(tag)) return true;
		if (el.getAttribute('role') === 'button' || el.getAttribute('role') === 'link') return true;
		return el.onclick !== null || window.getComputedStyle(el).cursor === 'pointer';
	};

	const cssEscape = (s) => (window.CSS && CSS.escape) ? CSS.escape(s) : s.replace(/([^a-zA-Z0-9_-])/g, '\\$1');

	const buildSelector = (el) => {
		if (el.id) {
			return '#' + cssEscape(el.id);
		}
		const tag = el.tagName.toLowerCase();
		const name = el.getAttribute('name');
		if (name) {
			return tag + '[name="' + name.replace(/"/g, '\\"') + '"]';
		}
		const cls = (el.className && typeof el.className === 'string')
			? el.className.trim().split(/\s+/).filter(Boolean)
			: [];
		if (cls.length > 0) {
			const sel = tag + '.' + cls.map(cssEscape).join('.');
			try {
				if (document.querySelectorAll(sel).length === 1) return sel;
			} catch (e) { /* class produced an invalid selector, fall through */ }
		}
		// Positional fallback relative to the parent.
		const parent = el.parentElement;
		if (!parent) return tag;
		const siblings = Array.from(parent.children).filter(c => c.tagName === el.tagName);
		const pos = siblings.indexOf(el) + 1;
		return tag + ':nth-of-type(' + pos + ')';
	};

	const candidates = document.querySelectorAll(
		'a, button, input, select, textarea, summary, [role="button"], [role="link"], [onclick]'
	);
	let index = 0;
	candidates.forEach((el) => {
		const rect = el.getBoundingClientRect();
		const attrs = {};
		for (const a of el.attributes) {
			attrs[a.name] = a.value;
		}
		let text = (el.innerText || el.value || el.getAttribute('aria-label') ||
			el.getAttribute('placeholder') || '').trim();
		if (text.length > 200) {
			text = text.slice(0, 200);
		}
		results.push({
			index: index++,
			tag: el.tagName.toLowerCase(),
			text: text,
			attributes: attrs,
			box: { x: rect.x, y: rect.y, width: rect.width, height: rect.height },
			visible: isVisible(el),
			clickable: isClickable(el),
			selector: buildSelector(el),
		});
	});
	return JSON.stringify(results);
})()
`

// visibleTextScript extracts the page's rendered text, skipping script and
// style contents.
const visibleTextScript = `
(() => {
	const body = document.body;
	if (!body) return '';
	let text = body.innerText || '';
	if (text.length > 20000) {
		text = text.slice(0, 20000);
	}
	return text;
})()
`

// findByTextScript locates the first visible element whose trimmed text is an
// exact match, returning a generated selector or null.
const findByTextScript = `
((target) => {
	const cssEscape = (s) => (window.CSS && CSS.escape) ? CSS.escape(s) : s.replace(/([^a-zA-Z0-9_-])/g, '\\$1');
	const isVisible = (el) => {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};
	const buildSelector = (el) => {
		if (el.id) return '#' + cssEscape(el.id);
		const tag = el.tagName.toLowerCase();
		const parent = el.parentElement;
		if (!parent) return tag;
		const siblings = Array.from(parent.children).filter(c => c.tagName === el.tagName);
		return tag + ':nth-of-type(' + (siblings.indexOf(el) + 1) + ')';
	};
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_ELEMENT);
	while (walker.nextNode()) {
		const el = walker.currentNode;
		if (!isVisible(el)) continue;
		const text = (el.innerText || el.value || '').trim();
		if (text === target && el.children.length === 0) {
			return buildSelector(el);
		}
	}
	// Second pass without the leaf restriction, so buttons wrapping spans match.
	const all = document.querySelectorAll('a, button, [role="button"], [role="link"], input, label');
	for (const el of all) {
		if (!isVisible(el)) continue;
		const text = (el.innerText || el.value || '').trim();
		if (text === target) return buildSelector(el);
	}
	return null;
})
`

// findImmediateScript reports whether a visible element matches the selector
// right now, without waiting.
const findImmediateScript = `
((sel) => {
	let el;
	try {
		el = document.querySelector(sel);
	} catch (e) {
		return false;
	}
	if (!el) return false;
	const style = window.getComputedStyle(el);
	if (style.display === 'none' || style.visibility === 'hidden') return false;
	const rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
})
`

// clickJSScript invokes the element's click() method, which bypasses pointer
// hit testing but still runs default activation behavior.
const clickJSScript = `
((sel) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.click();
	return true;
})
`

// forceClickScript dispatches a synthesized click event directly on the
// node, ignoring visibility and pointer interception.
const forceClickScript = `
((sel) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	const event = new MouseEvent('click', { bubbles: true, cancelable: true, view: window });
	el.dispatchEvent(event);
	return true;
})
`

// scrollByScript scrolls the viewport by a pixel delta.
const scrollByScript = `
((dy) => {
	window.scrollBy({ top: dy, left: 0, behavior: 'instant' });
	return window.scrollY;
})
`
