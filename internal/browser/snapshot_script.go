package browser

// findReactRootJS defines findRootFiber(rootSelector) in the page. With a
// selector only that element is inspected; otherwise the document is scanned
// for the first element that owns a React container.
const findReactRootJS = `
	var fiberOf = function (el) {
		if (!el) return null;
		var container = el._reactRootContainer;
		if (container) {
			var internal = container._internalRoot;
			if (internal && internal.current) return internal.current;
		}
		var keys = Object.keys(el);
		for (var i = 0; i < keys.length; i++) {
			var k = keys[i];
			if (k.indexOf('__reactInternalInstance') === 0 || k.indexOf('__reactFiber') === 0 || k.indexOf('__reactContainer') === 0) {
				if (el[k]) return el[k];
			}
		}
		return null;
	};
	var ownsContainer = function (el) {
		if (Object.prototype.hasOwnProperty.call(el, '_reactRootContainer')) return true;
		var keys = Object.keys(el);
		for (var i = 0; i < keys.length; i++) {
			if (keys[i].indexOf('__reactContainer') === 0) return true;
		}
		return false;
	};
	var findRootFiber = function (rootSelector) {
		if (typeof document === 'undefined' || !document) return null;
		if (rootSelector) return fiberOf(document.querySelector(rootSelector));
		var all = document.querySelectorAll('*');
		for (var i = 0; i < all.length; i++) {
			var el = all[i];
			if (el && ownsContainer(el)) {
				var f = fiberOf(el);
				if (f) return f;
			}
		}
		return null;
	};
`

// reactReadyJS reports whether a React root can be found.
const reactReadyJS = `function (rootSelector) {` + findReactRootJS + `
	try {
		return findRootFiber(rootSelector) !== null;
	} catch (e) {
		return false;
	}
}`

// snapshotReactJS serializes the fiber graph under the React root into plain
// JSON. Fibers are numbered in discovery order so fibers[i].id == i, and every
// object or array value carries an id so shared and cyclic values survive as
// {t:'r'} back-references. Host nodes are parked in window.__resqHandles,
// which is replaced on every snapshot.
const snapshotReactJS = `function (rootSelector, maxFibers, maxValueDepth) {` + findReactRootJS + `
	var win = typeof window !== 'undefined' ? window : {};
	var root = findRootFiber(rootSelector);
	if (!root) return { root: null, fibers: [], handles: 0, truncated: false };

	var maxValues = 100000;
	var truncated = false;

	var handles = [];
	var handleIds = new Map();
	win.__resqHandles = handles;

	var isNode = function (v) {
		return typeof v.nodeType === 'number' && typeof v.nodeName === 'string';
	};
	var shortText = function (s) {
		if (typeof s !== 'string') return '';
		s = s.replace(/\s+/g, ' ').trim();
		return s.length > 100 ? s.slice(0, 100) : s;
	};
	var handleOf = function (node) {
		if (!node || typeof node !== 'object' || !isNode(node)) return null;
		if (node.nodeType !== 1 && node.nodeType !== 3) return null;
		var ref = handleIds.get(node);
		if (ref === undefined) {
			ref = handles.length;
			handles.push(node);
			handleIds.set(node, ref);
		}
		if (node.nodeType === 3) {
			return { kind: 'text', ref: ref, text: shortText(node.nodeValue) };
		}
		var attr = function (name) {
			return typeof node.getAttribute === 'function' ? (node.getAttribute(name) || '') : '';
		};
		return {
			kind: 'element',
			ref: ref,
			tag: String(node.tagName || node.nodeName || '').toLowerCase(),
			id: typeof node.id === 'string' ? node.id : '',
			testId: attr('data-testid'),
			text: shortText(node.textContent)
		};
	};

	var valueIds = new Map();
	var encode = function (v, depth) {
		if (v === null) return null;
		var t = typeof v;
		if (t === 'undefined') return { t: 'u' };
		if (t === 'boolean' || t === 'string') return v;
		if (t === 'number') {
			if (v !== v) return { t: 'd', v: 'NaN' };
			if (v === Infinity) return { t: 'd', v: 'Infinity' };
			if (v === -Infinity) return { t: 'd', v: '-Infinity' };
			return v;
		}
		if (t === 'bigint') return { t: 'x', desc: String(v) + 'n' };
		if (t === 'symbol') return { t: 'x', desc: String(v) };
		if (t === 'function') {
			return {
				t: 'f',
				name: typeof v.name === 'string' ? v.name : '',
				displayName: typeof v.displayName === 'string' ? v.displayName : ''
			};
		}
		if (valueIds.has(v)) return { t: 'r', id: valueIds.get(v) };
		if (isNode(v)) return { t: 'x', desc: '[' + v.nodeName + ']' };
		if (v.$$typeof) return { t: 'x', desc: '[ReactElement]' };
		if (depth >= maxValueDepth || valueIds.size >= maxValues) {
			truncated = true;
			return { t: 'x', desc: '[Truncated]' };
		}
		var id = valueIds.size;
		valueIds.set(v, id);
		var i;
		if (Array.isArray(v)) {
			var items = [];
			for (i = 0; i < v.length; i++) items.push(encode(v[i], depth + 1));
			return { t: 'a', id: id, v: items };
		}
		var keys = Object.keys(v);
		var vals = [];
		for (i = 0; i < keys.length; i++) {
			var val;
			try {
				val = v[keys[i]];
			} catch (e) {
				val = undefined;
			}
			vals.push(encode(val, depth + 1));
		}
		return { t: 'o', id: id, k: keys, v: vals };
	};

	var encodeType = function (type) {
		if (typeof type === 'function') {
			return {
				kind: 'function',
				name: typeof type.name === 'string' ? type.name : '',
				displayName: typeof type.displayName === 'string' ? type.displayName : ''
			};
		}
		if (typeof type === 'string') return { kind: 'string', name: type };
		if (type && typeof type === 'object') {
			return {
				kind: 'object',
				displayName: typeof type.displayName === 'string' ? type.displayName : '',
				styledComponentId: typeof type.styledComponentId === 'string' ? type.styledComponentId : ''
			};
		}
		return { kind: 'none' };
	};

	var fiberIds = new Map();
	var queue = [];
	var idOf = function (f) {
		if (!f || typeof f !== 'object') return null;
		if (fiberIds.has(f)) return fiberIds.get(f);
		if (queue.length >= maxFibers) {
			truncated = true;
			return null;
		}
		fiberIds.set(f, queue.length);
		queue.push(f);
		return queue.length - 1;
	};

	idOf(root);
	var fibers = [];
	for (var qi = 0; qi < queue.length; qi++) {
		var f = queue[qi];
		var ctor = f.constructor && typeof f.constructor.name === 'string' ? f.constructor.name : '';
		fibers.push({
			id: qi,
			type: encodeType(f.type),
			ctor: ctor,
			child: idOf(f.child),
			sibling: idOf(f.sibling),
			'return': null,
			props: encode(f.memoizedProps, 0),
			state: encode(f.memoizedState, 0),
			stateNode: handleOf(f.stateNode)
		});
	}
	for (var ri = 0; ri < queue.length; ri++) {
		var parent = queue[ri]['return'];
		if (parent && fiberIds.has(parent)) fibers[ri]['return'] = fiberIds.get(parent);
	}

	return { root: 0, fibers: fibers, handles: handles.length, truncated: truncated };
}`

// resolveHandleJS returns the host node parked under a handle ref.
const resolveHandleJS = `(ref) => {
	const handles = window.__resqHandles;
	return handles && handles[ref] ? handles[ref] : null;
}`
