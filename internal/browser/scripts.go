package browser

import (
	"encoding/json"
	"fmt"

	"github.com/eduseek/eduseek/internal/interfaces"
)

// findScript resolves a selector across the document and open shadow roots.
// With text set, only the deepest elements containing it are kept.
const findScript = `(function(css, text) {
	const roots = [document];
	for (let i = 0; i < roots.length; i++) {
		roots[i].querySelectorAll('*').forEach(el => { if (el.shadowRoot) roots.push(el.shadowRoot); });
	}
	let els = [];
	for (const root of roots) {
		try { els.push(...root.querySelectorAll(css)); } catch (e) { return []; }
	}
	if (text) {
		const needle = text.toLowerCase();
		els = els.filter(el => ((el.innerText || el.value || el.textContent || '') + '').toLowerCase().includes(needle));
		els = els.filter(el => !els.some(other => other !== el && el.contains(other)));
	}
	return els;
})`

const visibleScript = `(function(el) {
	if (!el.isConnected) return false;
	if (el.checkVisibility) return el.checkVisibility({visibilityProperty: true, opacityProperty: false});
	const style = getComputedStyle(el);
	return style.visibility !== 'hidden' && style.display !== 'none' && el.getClientRects().length > 0;
})`

// contentScript serializes the document including shadow roots when supported
const contentScript = `(function() {
	const root = document.documentElement;
	if (!root) return '';
	if (typeof root.getHTML === 'function') {
		const shadowRoots = [];
		const walk = node => node.querySelectorAll('*').forEach(el => {
			if (el.shadowRoot) { shadowRoots.push(el.shadowRoot); walk(el.shadowRoot); }
		});
		walk(document);
		try { return root.getHTML({serializableShadowRoots: true, shadowRoots: shadowRoots}); } catch (e) {}
	}
	return root.outerHTML;
})()`

const readyStateScript = `document.readyState === 'complete'`

func jsArgs(sel interfaces.Selector) string {
	css, _ := json.Marshal(sel.CSS)
	text, _ := json.Marshal(sel.Text)
	return string(css) + ", " + string(text)
}

// selectorScript evaluates body with els bound to the matches and visible bound to the visibility check
func selectorScript(sel interfaces.Selector, body string) string {
	return fmt.Sprintf(`(function() {
	const els = %s(%s);
	const visible = %s;
	%s
})()`, findScript, jsArgs(sel), visibleScript, body)
}

func visibleTextsScript(css string) string {
	return selectorScript(interfaces.CSS(css), `return els.filter(visible).map(el => el.innerText || '').filter(t => t.trim() !== '');`)
}

func existsVisibleScript(sel interfaces.Selector) string {
	return selectorScript(sel, `return els.some(visible);`)
}

func detachedScript(sel interfaces.Selector) string {
	return selectorScript(sel, `return els.length === 0;`)
}

func countScript(sel interfaces.Selector) string {
	return selectorScript(sel, `return els.length;`)
}

func innerTextScript(sel interfaces.Selector) string {
	return selectorScript(sel, `return els.length ? (els[0].innerText || els[0].value || '') : null;`)
}

func clickScript(sel interfaces.Selector) string {
	return selectorScript(sel, `const el = els.find(visible);
	if (!el) return false;
	el.scrollIntoView({block: 'center'});
	el.click();
	return true;`)
}

// focusClearScript focuses the first visible field and clears it so key events replace its value
func focusClearScript(sel interfaces.Selector) string {
	return selectorScript(sel, `const el = els.find(visible) || els[0];
	if (!el) return false;
	el.focus();
	if ('value' in el) {
		el.value = '';
		el.dispatchEvent(new Event('input', {bubbles: true}));
	}
	return true;`)
}
