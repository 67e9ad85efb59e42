package server

import (
	"fmt"
	"net/http"
)

// handleTrackerJS serves the landing page tracker script
func (s *Server) handleTrackerJS(w http.ResponseWriter, r *http.Request) {
	// Determine server URL from request
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	serverURL := fmt.Sprintf("%s://%s", scheme, r.Host)

	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.Write([]byte(GenerateTrackerScript(serverURL)))
}

// GenerateTrackerScript returns ft.js bound to serverURL.
//
// The script reads the page key from its own data-page attribute, asks the
// winner endpoint which CTA to show, swaps [data-fg-cta] text from the
// data-fg-variants JSON map and reports enter_page, cta_click and complete.
// Randomly assigned variants are reported as test traffic; a decided winner
// is not.
func GenerateTrackerScript(serverURL string) string {
	return fmt.Sprintf(`(function(){
  var S='%s';
  var me=document.currentScript;
  var page=((me&&me.dataset.page)||document.body.dataset.fgPage||'').toLowerCase();
  if(!page)return;

  // Get or create session ID
  var sid=localStorage.getItem('fg_sid');
  if(!sid){
    sid=(window.crypto&&crypto.randomUUID)?crypto.randomUUID():String(Date.now())+Math.random().toString(16).slice(2);
    localStorage.setItem('fg_sid',sid);
  }

  var variant=null,isTest=false;

  function send(name,meta){
    var body=JSON.stringify({sid:sid,page:page,event_name:name,variant:variant,is_test:isTest,ts:Date.now(),meta:meta||null});
    if(navigator.sendBeacon&&navigator.sendBeacon(S+'/api/event',body))return;
    fetch(S+'/api/event',{method:'POST',headers:{'Content-Type':'application/json'},body:body,keepalive:true});
  }

  function swap(){
    document.querySelectorAll('[data-fg-cta]').forEach(function(el){
      var texts=JSON.parse(el.dataset.fgVariants||'{}');
      if(variant&&texts[variant])el.textContent=texts[variant];
      el.addEventListener('click',function(){send('cta_click',{cta:el.dataset.fgCta||null});});
    });
    document.querySelectorAll('[data-fg-complete]').forEach(function(el){
      el.addEventListener('click',function(){send('complete');});
    });
  }

  function start(){
    swap();
    send('enter_page');
  }

  fetch(S+'/api/cta-winner?page='+encodeURIComponent(page)).then(function(r){return r.json();}).then(function(d){
    if(d&&d.has_active_experiment){
      if(d.winner){
        variant=d.winner;
      }else{
        var key='fg_v_'+page;
        var vs=(d.policy&&d.policy.variants)||[];
        variant=localStorage.getItem(key);
        if(!variant||vs.indexOf(variant)<0){
          variant=vs.length?vs[Math.floor(Math.random()*vs.length)]:null;
          if(variant)localStorage.setItem(key,variant);
        }
        isTest=!!variant;
      }
    }
    start();
  }).catch(start);

  window.funnelGoat={complete:function(meta){send('complete',meta);}};
})();`, serverURL)
}
